package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tidegate/worldsync/internal/eventbus"
	"github.com/tidegate/worldsync/internal/npc"
)

type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseErrorBackoff Phase = "error_backoff"
)

const (
	maxReconnectAttempts = 5
	baseReconnectDelay   = time.Second
	maxReconnectDelay    = 30 * time.Second
)

// ErrFeedGaveUp is reported after maxReconnectAttempts consecutive failures.
// The process keeps running with a stale entity set.
var ErrFeedGaveUp = errors.New("change feed gave up reconnecting")

// Subscriber owns the connection state machine and the event reconciliation
// loop. One instance per process, constructed and torn down by the host.
type Subscriber struct {
	provider  Provider
	broadcast Broadcast
	lifecycle Lifecycle
	bus       *eventbus.Bus

	mu        sync.Mutex
	ctx       context.Context
	phase     Phase
	attempts  int
	lastErr   error
	feedSub   Subscription
	bcastSub  Subscription
	reconnect *time.Timer

	// swapped out by tests to avoid real backoff waits
	delayFn func(attempt int) time.Duration
}

type Options struct {
	Provider  Provider
	Broadcast Broadcast
	Lifecycle Lifecycle
	Bus       *eventbus.Bus
}

func NewSubscriber(opts Options) *Subscriber {
	return &Subscriber{
		provider:  opts.Provider,
		broadcast: opts.Broadcast,
		lifecycle: opts.Lifecycle,
		bus:       opts.Bus,
		phase:     PhaseDisconnected,
		delayFn:   reconnectDelay,
	}
}

func reconnectDelay(attempt int) time.Duration {
	d := baseReconnectDelay << uint(attempt)
	if d > maxReconnectDelay || d <= 0 {
		d = maxReconnectDelay
	}
	return d
}

// Start arms both subscriptions. It is a no-op when already connected, and a
// fresh start otherwise: any previously held subscription handles are torn
// down first so stale handlers cannot double-process future events.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseConnected {
		return nil
	}
	s.ctx = ctx
	s.attempts = 0
	s.lastErr = nil
	return s.startLocked()
}

func (s *Subscriber) startLocked() error {
	s.teardownLocked()
	s.phase = PhaseConnecting

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	sub, err := s.provider.Subscribe(ctx, s.handleChange, s.handleStatus)
	if err != nil {
		log.Printf("[feed] subscribe: %v", err)
		s.failLocked()
		return fmt.Errorf("subscribe change stream: %w", err)
	}
	s.feedSub = sub

	if s.broadcast != nil {
		bsub, err := s.broadcast.Subscribe(ctx, s.handleNotice)
		if err != nil {
			log.Printf("[feed] broadcast subscribe: %v", err)
		} else {
			s.bcastSub = bsub
		}
	}
	return nil
}

// Stop unsubscribes both channels, cancels any pending reconnect and resets
// the phase. Safe to call when never started, and safe to call twice.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.phase = PhaseDisconnected
}

func (s *Subscriber) teardownLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.feedSub != nil {
		s.feedSub.Unsubscribe()
		s.feedSub = nil
	}
	if s.bcastSub != nil {
		s.bcastSub.Unsubscribe()
		s.bcastSub = nil
	}
}

func (s *Subscriber) handleStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st {
	case StatusConnected:
		s.phase = PhaseConnected
		s.attempts = 0
		s.lastErr = nil
		log.Printf("[feed] change stream connected")
	case StatusTimedOut:
		// the transport retries internally, nothing to reschedule
		log.Printf("[feed] change stream timed out, transport will retry")
	case StatusClosed, StatusError:
		log.Printf("[feed] change stream %s, reconnecting", st)
		s.failLocked()
	}
}

func (s *Subscriber) failLocked() {
	s.teardownLocked()
	delay := s.delayFn(s.attempts)
	s.attempts++
	if s.attempts >= maxReconnectAttempts {
		s.phase = PhaseDisconnected
		s.lastErr = ErrFeedGaveUp
		log.Printf("[feed] giving up after %d reconnect attempts, entity set may be stale", s.attempts)
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		s.journal(ctx, eventbus.StreamErrors, "feed", "change feed gave up reconnecting", map[string]any{
			"attempts": s.attempts,
		})
		return
	}
	s.phase = PhaseErrorBackoff
	log.Printf("[feed] reconnect attempt %d in %s", s.attempts, delay)
	s.reconnect = time.AfterFunc(delay, s.reconnectNow)
}

func (s *Subscriber) reconnectNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseErrorBackoff {
		return
	}
	if err := s.startLocked(); err != nil {
		log.Printf("[feed] reconnect: %v", err)
	}
}

// LoadAll fetches every enabled record from the catalog and spawns each,
// returning the count spawned. Errors are non-fatal: the world keeps running
// with whatever is already live.
func (s *Subscriber) LoadAll(ctx context.Context) int {
	recs, err := s.provider.FetchEnabled(ctx)
	if err != nil {
		log.Printf("[feed] load catalog: %v", err)
		return 0
	}
	n := 0
	for _, rec := range recs {
		cfg := npc.Normalize(rec)
		if cfg.ID == "" || !cfg.Enabled {
			continue
		}
		if err := s.lifecycle.Spawn(ctx, cfg); err != nil {
			log.Printf("[feed] load %s: %v", cfg.ID, err)
			continue
		}
		n++
	}
	log.Printf("[feed] loaded %d entities from catalog", n)
	return n
}

func (s *Subscriber) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Subscriber) IsConnected() bool { return s.Phase() == PhaseConnected }

func (s *Subscriber) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Err reports the terminal subscription error, if any.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// handleChange runs on the provider's dispatch goroutine. Events for one
// stream are handled inline so per-id order is preserved; a failure handling
// one event never stops the stream.
func (s *Subscriber) handleChange(c Change) {
	defer s.recoverHandler("change")
	ctx := s.context()
	switch c.Action {
	case ActionDelete:
		rec := c.Old
		if rec == nil {
			rec = c.New
		}
		if rec == nil || rec.ID == "" {
			return
		}
		s.applyRemove(ctx, rec.ID)
	case ActionInsert, ActionUpdate:
		if c.New == nil {
			log.Printf("[feed] %s event without new record, skipping", c.Action)
			return
		}
		if !c.New.Enabled {
			s.applyRemove(ctx, c.New.ID)
			return
		}
		s.applyUpsert(ctx, *c.New)
	default:
		log.Printf("[feed] unknown action %q, skipping", c.Action)
	}
}

func (s *Subscriber) handleNotice(n Notice) {
	defer s.recoverHandler("notice")
	ctx := s.context()
	switch n.Event {
	case NoticeDeleted:
		if n.Payload == nil || n.Payload.ID == "" {
			return
		}
		s.applyRemove(ctx, n.Payload.ID)
	case NoticeCreated, NoticeUpdated:
		if n.Payload == nil {
			log.Printf("[feed] %s notice without payload, skipping", n.Event)
			return
		}
		if !n.Payload.Enabled {
			s.applyRemove(ctx, n.Payload.ID)
			return
		}
		s.applyUpsert(ctx, *n.Payload)
	default:
		log.Printf("[feed] unknown notice %q, skipping", n.Event)
	}
}

func (s *Subscriber) applyUpsert(ctx context.Context, rec npc.RawRecord) {
	cfg := npc.Normalize(rec)
	if cfg.ID == "" {
		log.Printf("[feed] record without id, skipping")
		return
	}
	var err error
	action := "spawned"
	if s.lifecycle.Has(cfg.ID) {
		action = "updated"
		err = s.lifecycle.Update(ctx, cfg)
	} else {
		err = s.lifecycle.Spawn(ctx, cfg)
	}
	if err != nil {
		log.Printf("[feed] upsert %s: %v", cfg.ID, err)
		return
	}
	s.journal(ctx, eventbus.StreamSync, cfg.ID, "feed "+action+" entity", map[string]any{
		"map": cfg.Spawn.Map,
	})
}

func (s *Subscriber) applyRemove(ctx context.Context, id string) {
	if !s.lifecycle.Despawn(ctx, id) {
		return
	}
	s.journal(ctx, eventbus.StreamSync, id, "feed removed entity", nil)
}

func (s *Subscriber) recoverHandler(kind string) {
	if r := recover(); r != nil {
		log.Printf("[feed] %s handler panic: %v", kind, r)
	}
}

func (s *Subscriber) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

func (s *Subscriber) journal(ctx context.Context, stream, subject, body string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	_, err := s.bus.Push(ctx, eventbus.EventInput{
		Stream:  stream,
		Subject: subject,
		Body:    body,
		Payload: payload,
	})
	if err != nil {
		log.Printf("[feed] journal: %v", err)
	}
}
