// Package engine runs the per-entity behavior loop: idle wandering, the
// exclusive conversation session, and tool-call dispatch.
package engine

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"

	"github.com/tidegate/worldsync/internal/ai"
	"github.com/tidegate/worldsync/internal/eventbus"
	"github.com/tidegate/worldsync/internal/memory"
	"github.com/tidegate/worldsync/internal/npc"
	"github.com/tidegate/worldsync/internal/registry"
	"github.com/tidegate/worldsync/internal/world"
)

// ErrBusy reports that the entity is already in a conversation. Callers
// drop the interaction; the player is not shown an error.
var ErrBusy = errors.New("entity is busy")

var greetings = []string{
	"Hello there!",
	"Greetings, traveler!",
	"Well met!",
	"Ah, a visitor!",
}

// Responder is the inference collaborator. Implementations must fail soft:
// a transport error yields apologetic text, never an error the caller sees.
type Responder interface {
	GenerateResponse(ctx context.Context, req ai.Request) ai.Response
	GenerateIdleThought(ctx context.Context, cfg npc.Config) string
}

type MemoryStore interface {
	History(ctx context.Context, npcID, playerID string, limit int) ([]memory.Turn, error)
	AppendTurn(ctx context.Context, npcID, playerID, role, content string) error
}

type ImageGenerator interface {
	Generate(ctx context.Context, prompt, style string) (string, error)
}

// Actor drives one live entity. It is created by the lifecycle manager on
// spawn and shut down on despawn.
type Actor struct {
	tpl    *registry.Template
	handle world.Handle
	ai     Responder
	memory MemoryStore
	images ImageGenerator
	bus    *eventbus.Bus

	// randFn returns a value in [0, 1); replaced in tests.
	randFn func() float64

	conv sync.Mutex

	idleMu   sync.Mutex
	idleStop chan struct{}

	shutdown sync.Once
}

type ActorOptions struct {
	Template *registry.Template
	Handle   world.Handle
	AI       Responder
	Memory   MemoryStore
	Images   ImageGenerator
	Bus      *eventbus.Bus
}

func NewActor(opts ActorOptions) *Actor {
	return &Actor{
		tpl:    opts.Template,
		handle: opts.Handle,
		ai:     opts.AI,
		memory: opts.Memory,
		images: opts.Images,
		bus:    opts.Bus,
		randFn: rand.Float64,
	}
}

func (a *Actor) ID() string           { return a.tpl.Config.ID }
func (a *Actor) Config() npc.Config   { return a.tpl.Config }
func (a *Actor) Handle() world.Handle { return a.handle }

// Interact runs one conversation round-trip with a player. At most one
// conversation runs per entity; a second trigger while one is active is
// dropped with ErrBusy. Idle behavior is suspended for the duration and
// resumes on every exit path.
func (a *Actor) Interact(ctx context.Context, playerID, playerName, message string) error {
	if !a.conv.TryLock() {
		return ErrBusy
	}
	defer a.conv.Unlock()

	cfg := a.tpl.Config
	if playerName == "" {
		playerName = "Adventurer"
	}

	if a.tpl.GreetOnProximity {
		a.greet(ctx, playerID)
	}

	var history []ai.ChatMessage
	if a.memory != nil {
		turns, err := a.memory.History(ctx, cfg.ID, playerID, 20)
		if err != nil {
			log.Printf("[engine] %s: load history: %v", cfg.ID, err)
		}
		for _, t := range turns {
			history = append(history, ai.ChatMessage{Role: t.Role, Content: t.Content})
		}
	}

	req := ai.Request{
		NPCID:      cfg.ID,
		PlayerID:   playerID,
		PlayerName: playerName,
		Config:     cfg,
		History:    history,
		Message:    message,
	}

	inbound := message
	if inbound == "" {
		inbound = playerName + " approaches and says hello."
	}
	a.persistTurn(ctx, playerID, memory.RoleUser, inbound)

	resp := ai.Response{Text: ai.FallbackText}
	if a.ai != nil {
		resp = a.ai.GenerateResponse(ctx, req)
	}

	a.persistTurn(ctx, playerID, memory.RoleAssistant, resp.Text)
	if resp.Text != "" {
		if err := a.handle.PresentText(ctx, resp.Text); err != nil {
			log.Printf("[engine] %s: present response: %v", cfg.ID, err)
		}
	}

	a.executeToolCalls(ctx, playerID, resp.ToolCalls)
	a.journal(ctx, playerID, inbound, resp)
	return nil
}

func (a *Actor) greet(ctx context.Context, playerID string) {
	greeting := greetings[int(a.randFn()*float64(len(greetings)))%len(greetings)]
	if err := a.handle.PresentText(ctx, greeting); err != nil {
		log.Printf("[engine] %s: present greeting: %v", a.tpl.Config.ID, err)
		return
	}
	a.persistTurn(ctx, playerID, memory.RoleAssistant, greeting)
}

func (a *Actor) persistTurn(ctx context.Context, playerID, role, content string) {
	if a.memory == nil {
		return
	}
	if err := a.memory.AppendTurn(ctx, a.tpl.Config.ID, playerID, role, content); err != nil {
		log.Printf("[engine] %s: persist %s turn: %v", a.tpl.Config.ID, role, err)
	}
}

func (a *Actor) journal(ctx context.Context, playerID, inbound string, resp ai.Response) {
	if a.bus == nil {
		return
	}
	_, err := a.bus.Push(ctx, eventbus.EventInput{
		Stream:  eventbus.StreamConversations,
		Subject: a.tpl.Config.ID,
		Body:    "conversation turn",
		Payload: map[string]any{
			"player_id": playerID,
			"inbound":   inbound,
			"response":  resp.Text,
			"tools":     len(resp.ToolCalls),
		},
	})
	if err != nil {
		log.Printf("[engine] %s: journal conversation: %v", a.tpl.Config.ID, err)
	}
}

// Shutdown tears the actor down: the idle loop stops immediately, while an
// in-flight conversation is allowed to finish. Safe to call more than once.
func (a *Actor) Shutdown() {
	a.shutdown.Do(func() {
		a.stopIdle()
	})
}
