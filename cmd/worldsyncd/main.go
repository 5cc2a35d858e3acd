package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidegate/worldsync/internal/ai"
	"github.com/tidegate/worldsync/internal/api"
	"github.com/tidegate/worldsync/internal/config"
	"github.com/tidegate/worldsync/internal/eventbus"
	"github.com/tidegate/worldsync/internal/feed"
	"github.com/tidegate/worldsync/internal/feed/postgres"
	"github.com/tidegate/worldsync/internal/lifecycle"
	"github.com/tidegate/worldsync/internal/memory"
	"github.com/tidegate/worldsync/internal/registry"
	"github.com/tidegate/worldsync/internal/state"
	"github.com/tidegate/worldsync/internal/world"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	bus := eventbus.NewBus(db)
	mem := memory.NewStore(db)

	var llmClient *ai.Client
	if cfg.LLMModel != "" && cfg.LLMAPIKey != "" {
		llmClient, err = ai.NewClient(ai.Config{
			Provider: cfg.LLMProvider,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
		})
		if err != nil {
			log.Printf("LLM disabled: %v", err)
		}
	}

	var images *ai.ImageClient
	if cfg.ImageGenURL != "" {
		images = ai.NewImageClient(cfg.ImageGenURL, cfg.ImageGenToken)
	}

	runtime := world.NewMemWorld()
	deps := lifecycle.Deps{Memory: mem, Bus: bus}
	if llmClient != nil {
		deps.AI = llmClient
	}
	if images != nil {
		deps.Images = images
	}
	manager := lifecycle.NewManager(registry.New(), registry.NewTemplates(), lazyWorld{runtime}, deps)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	var subscriber *feed.Subscriber
	if cfg.PostgresDSN != "" {
		provider, err := postgres.New(rootCtx, cfg.PostgresDSN, cfg.NotifyChannel)
		if err != nil {
			log.Fatalf("postgres provider: %v", err)
		}
		defer provider.Close()

		var broadcast feed.Broadcast
		if cfg.BroadcastURL != "" {
			broadcast = &feed.WSBroadcast{URL: cfg.BroadcastURL}
		}
		subscriber = feed.NewSubscriber(feed.Options{
			Provider:  provider,
			Broadcast: broadcast,
			Lifecycle: manager,
			Bus:       bus,
		})
		if err := subscriber.Start(rootCtx); err != nil {
			log.Printf("feed start: %v", err)
		}
		subscriber.LoadAll(rootCtx)
	} else {
		log.Printf("no postgres DSN configured, running without a change feed")
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	apiServer := &api.Server{
		Lifecycle:  manager,
		Subscriber: subscriber,
		Bus:        bus,
		StartedAt:  time.Now(),
	}

	httpServer := &http.Server{
		Handler:           loggingMiddleware(apiServer.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return rootCtx
		},
	}

	go func() {
		log.Printf("worldsyncd listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if subscriber != nil {
		subscriber.Stop()
	}
	manager.ClearAll(rootCtx)
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	_ = httpServer.Close()
}

// lazyWorld creates maps in the in-memory runtime on first reference, the
// way a real engine loads maps on demand.
type lazyWorld struct {
	w *world.MemWorld
}

func (l lazyWorld) ResolveMap(ctx context.Context, mapID string) (world.Map, error) {
	if mapID == "" {
		return nil, world.ErrMapNotFound
	}
	return l.w.AddMap(mapID), nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
