package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidegate/worldsync/internal/ai"
	"github.com/tidegate/worldsync/internal/memory"
	"github.com/tidegate/worldsync/internal/npc"
	"github.com/tidegate/worldsync/internal/registry"
	"github.com/tidegate/worldsync/internal/world"
)

type fakeResponder struct {
	resp    ai.Response
	entered chan struct{}
	release chan struct{}
	calls   int32
}

func (f *fakeResponder) GenerateResponse(ctx context.Context, req ai.Request) ai.Response {
	atomic.AddInt32(&f.calls, 1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.resp
}

func (f *fakeResponder) GenerateIdleThought(ctx context.Context, cfg npc.Config) string {
	return "hm"
}

type memStore struct {
	mu    sync.Mutex
	turns []memory.Turn
	fail  bool
}

func (m *memStore) History(ctx context.Context, npcID, playerID string, limit int) ([]memory.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("store unavailable")
	}
	out := make([]memory.Turn, len(m.turns))
	copy(out, m.turns)
	return out, nil
}

func (m *memStore) AppendTurn(ctx context.Context, npcID, playerID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store unavailable")
	}
	m.turns = append(m.turns, memory.Turn{NPCID: npcID, PlayerID: playerID, Role: role, Content: content})
	return nil
}

func (m *memStore) roles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.turns))
	for i, t := range m.turns {
		out[i] = t.Role
	}
	return out
}

func newTestHandle(t *testing.T, id string) *world.MemHandle {
	t.Helper()
	w := world.NewMemWorld("m1")
	m, err := w.ResolveMap(context.Background(), "m1")
	if err != nil {
		t.Fatalf("resolve map: %v", err)
	}
	h, err := m.CreateEntity(context.Background(), world.EntitySpec{ID: id, Name: id, X: 100, Y: 100})
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	return h.(*world.MemHandle)
}

func newTestActor(t *testing.T, cfg npc.Config, responder Responder, store MemoryStore) (*Actor, *world.MemHandle) {
	t.Helper()
	handle := newTestHandle(t, cfg.ID)
	actor := NewActor(ActorOptions{
		Template: registry.Compile(cfg),
		Handle:   handle,
		AI:       responder,
		Memory:   store,
	})
	return actor, handle
}

func TestInteractPersistsAndPresents(t *testing.T) {
	cfg := npc.Config{ID: "e1", Name: "Mira"}
	responder := &fakeResponder{resp: ai.Response{Text: "Well met."}}
	store := &memStore{}
	actor, handle := newTestActor(t, cfg, responder, store)

	if err := actor.Interact(context.Background(), "p1", "Alice", "hello"); err != nil {
		t.Fatalf("interact: %v", err)
	}
	roles := store.roles()
	if len(roles) != 2 || roles[0] != memory.RoleUser || roles[1] != memory.RoleAssistant {
		t.Fatalf("expected user then assistant turn, got %v", roles)
	}
	if len(handle.Presented) != 1 || handle.Presented[0] != "Well met." {
		t.Fatalf("expected response presented, got %v", handle.Presented)
	}
}

func TestInteractExclusivity(t *testing.T) {
	cfg := npc.Config{ID: "e1"}
	responder := &fakeResponder{
		resp: ai.Response{Text: "hi"},
		// buffered so the post-release Interact below does not block
		// sending with no receiver on the other side
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	actor, _ := newTestActor(t, cfg, responder, &memStore{})

	done := make(chan error, 1)
	go func() {
		done <- actor.Interact(context.Background(), "p1", "Alice", "hello")
	}()
	<-responder.entered

	if err := actor.Interact(context.Background(), "p2", "Bob", "hi"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for concurrent interaction, got %v", err)
	}

	close(responder.release)
	if err := <-done; err != nil {
		t.Fatalf("first interaction failed: %v", err)
	}
	if got := atomic.LoadInt32(&responder.calls); got != 1 {
		t.Fatalf("expected exactly one inference call, got %d", got)
	}

	// Lock must be free again after the first conversation finishes.
	if err := actor.Interact(context.Background(), "p2", "Bob", "hi"); err != nil {
		t.Fatalf("interaction after release: %v", err)
	}
}

func TestInteractGreeting(t *testing.T) {
	cfg := npc.Config{
		ID:       "e1",
		Skills:   []string{registry.SkillSay},
		Behavior: npc.Behavior{GreetOnProximity: true},
	}
	responder := &fakeResponder{resp: ai.Response{Text: "..."}}
	store := &memStore{}
	actor, handle := newTestActor(t, cfg, responder, store)
	actor.randFn = func() float64 { return 0 }

	if err := actor.Interact(context.Background(), "p1", "", ""); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if len(handle.Presented) < 2 {
		t.Fatalf("expected greeting before response, got %v", handle.Presented)
	}
	if handle.Presented[0] != greetings[0] {
		t.Fatalf("expected canned greeting, got %q", handle.Presented[0])
	}
	roles := store.roles()
	if len(roles) != 3 || roles[0] != memory.RoleAssistant {
		t.Fatalf("greeting must persist as assistant turn: %v", roles)
	}
}

func TestInteractSurvivesMemoryFailure(t *testing.T) {
	cfg := npc.Config{ID: "e1"}
	responder := &fakeResponder{resp: ai.Response{Text: "still here"}}
	actor, handle := newTestActor(t, cfg, responder, &memStore{fail: true})

	if err := actor.Interact(context.Background(), "p1", "Alice", "hello"); err != nil {
		t.Fatalf("interact should tolerate store failure: %v", err)
	}
	if len(handle.Presented) != 1 {
		t.Fatalf("response must still be presented, got %v", handle.Presented)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	cfg := npc.Config{
		ID:       "e1",
		Skills:   []string{registry.SkillMove},
		Behavior: npc.Behavior{IdleIntervalMs: 10, PatrolRadius: 2},
	}
	actor, _ := newTestActor(t, cfg, &fakeResponder{}, &memStore{})
	actor.StartIdle()
	actor.Shutdown()
	actor.Shutdown()

	actor.idleMu.Lock()
	stopped := actor.idleStop == nil
	actor.idleMu.Unlock()
	if !stopped {
		t.Fatalf("idle loop should be stopped after shutdown")
	}
}

func TestIdleSuspendedDuringConversationAndResumes(t *testing.T) {
	cfg := npc.Config{
		ID:       "e1",
		Skills:   []string{registry.SkillMove},
		Behavior: npc.Behavior{IdleIntervalMs: 5, PatrolRadius: 2},
	}
	responder := &fakeResponder{
		resp:    ai.Response{Text: ai.FallbackText}, // simulated inference failure
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	actor, handle := newTestActor(t, cfg, responder, &memStore{})
	actor.randFn = func() float64 { return 0.1 }
	defer actor.Shutdown()

	actor.StartIdle()
	actor.StartIdle() // idempotent

	done := make(chan error, 1)
	go func() {
		done <- actor.Interact(context.Background(), "p1", "Alice", "hello")
	}()
	<-responder.entered

	x0, y0 := handle.Position()
	time.Sleep(50 * time.Millisecond)
	if x, y := handle.Position(); x != x0 || y != y0 {
		t.Fatalf("idle tick must not move the entity mid-conversation")
	}

	close(responder.release)
	if err := <-done; err != nil {
		t.Fatalf("interact: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if x, y := handle.Position(); x != x0 || y != y0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("idle wandering did not resume after conversation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIdleNotStartedWithoutMoveSkill(t *testing.T) {
	cfg := npc.Config{ID: "e1", Behavior: npc.Behavior{IdleIntervalMs: 5, PatrolRadius: 2}}
	actor, _ := newTestActor(t, cfg, &fakeResponder{}, &memStore{})
	actor.StartIdle()

	actor.idleMu.Lock()
	running := actor.idleStop != nil
	actor.idleMu.Unlock()
	if running {
		t.Fatalf("idle loop requires the move skill")
	}
}

func TestGreetingTextStable(t *testing.T) {
	for _, g := range greetings {
		if strings.TrimSpace(g) == "" {
			t.Fatalf("empty greeting in rotation")
		}
	}
}
