// Package lifecycle owns spawn, update, and despawn of live NPCs against
// the registry and template cache.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tidegate/worldsync/internal/engine"
	"github.com/tidegate/worldsync/internal/eventbus"
	"github.com/tidegate/worldsync/internal/npc"
	"github.com/tidegate/worldsync/internal/registry"
	"github.com/tidegate/worldsync/internal/world"
)

// ErrNotSpawned marks operations against an id with no live entity.
var ErrNotSpawned = errors.New("entity is not spawned")

// Deps are the collaborators handed to every actor the manager builds.
type Deps struct {
	AI     engine.Responder
	Memory engine.MemoryStore
	Images engine.ImageGenerator
	Bus    *eventbus.Bus
}

// Manager serializes all registry mutation per entity id: a check-then-act
// sequence for one id is atomic, while distinct ids proceed in parallel.
type Manager struct {
	registry  *registry.Registry
	templates *registry.Templates
	resolver  world.Resolver
	deps      Deps

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(reg *registry.Registry, templates *registry.Templates, resolver world.Resolver, deps Deps) *Manager {
	return &Manager{
		registry:  reg,
		templates: templates,
		resolver:  resolver,
		deps:      deps,
		locks:     map[string]*sync.Mutex{},
	}
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Spawn instantiates cfg in the world and records the live handle. Spawning
// an id that is already live is a no-op success. On any failure nothing is
// registered and no half-built entity survives.
func (m *Manager) Spawn(ctx context.Context, cfg npc.Config) error {
	l := m.lockFor(cfg.ID)
	l.Lock()
	defer l.Unlock()
	return m.spawnLocked(ctx, cfg)
}

func (m *Manager) spawnLocked(ctx context.Context, cfg npc.Config) error {
	if m.registry.Has(cfg.ID) {
		return nil
	}

	mp, err := m.resolver.ResolveMap(ctx, cfg.Spawn.Map)
	if err != nil {
		return fmt.Errorf("spawn %s: resolve map %q: %w", cfg.ID, cfg.Spawn.Map, err)
	}

	tpl := m.templates.Obtain(cfg)
	handle, err := mp.CreateEntity(ctx, world.EntitySpec{
		ID:     cfg.ID,
		Name:   cfg.Name,
		Sprite: cfg.Sprite,
		X:      cfg.Spawn.X,
		Y:      cfg.Spawn.Y,
	})
	if err != nil {
		return fmt.Errorf("spawn %s: create entity: %w", cfg.ID, err)
	}

	actor := engine.NewActor(engine.ActorOptions{
		Template: tpl,
		Handle:   handle,
		AI:       m.deps.AI,
		Memory:   m.deps.Memory,
		Images:   m.deps.Images,
		Bus:      m.deps.Bus,
	})

	if !m.registry.Put(registry.Entry{ID: cfg.ID, Handle: handle, Controller: actor}) {
		handle.Remove()
		return fmt.Errorf("spawn %s: id already registered", cfg.ID)
	}
	actor.StartIdle()

	m.journal(ctx, cfg.ID, "spawned", map[string]any{"map": cfg.Spawn.Map, "name": cfg.Name})
	return nil
}

// Update applies a changed config: despawn, evict the cached template so
// the next spawn compiles fresh behavior wiring, respawn.
func (m *Manager) Update(ctx context.Context, cfg npc.Config) error {
	l := m.lockFor(cfg.ID)
	l.Lock()
	defer l.Unlock()

	m.despawnLocked(ctx, cfg.ID)
	m.templates.Invalidate(cfg.ID)
	if err := m.spawnLocked(ctx, cfg); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	m.journal(ctx, cfg.ID, "updated", nil)
	return nil
}

// Despawn tears the entity down and reports whether it was live. Despawning
// an unknown id is a no-op false.
func (m *Manager) Despawn(ctx context.Context, id string) bool {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return m.despawnLocked(ctx, id)
}

func (m *Manager) despawnLocked(ctx context.Context, id string) bool {
	entry, ok := m.registry.Remove(id)
	if !ok {
		return false
	}
	if entry.Controller != nil {
		entry.Controller.Shutdown()
	}
	entry.Handle.Remove()
	m.journal(ctx, id, "despawned", nil)
	return true
}

// ClearAll despawns every live entity and resets the template cache. Used
// at process shutdown.
func (m *Manager) ClearAll(ctx context.Context) {
	for _, id := range m.registry.IDs() {
		m.Despawn(ctx, id)
	}
	m.templates.Reset()
}

func (m *Manager) Has(id string) bool { return m.registry.Has(id) }
func (m *Manager) Len() int           { return m.registry.Len() }
func (m *Manager) IDs() []string      { return m.registry.IDs() }

// Interact routes a player interaction to the live actor for id.
func (m *Manager) Interact(ctx context.Context, id, playerID, playerName, message string) error {
	entry, ok := m.registry.Get(id)
	if !ok {
		return fmt.Errorf("entity %s: %w", id, ErrNotSpawned)
	}
	actor, ok := entry.Controller.(*engine.Actor)
	if !ok {
		return fmt.Errorf("entity %s has no interaction controller", id)
	}
	return actor.Interact(ctx, playerID, playerName, message)
}

func (m *Manager) journal(ctx context.Context, id, action string, payload map[string]any) {
	if m.deps.Bus == nil {
		return
	}
	if _, err := m.deps.Bus.Push(ctx, eventbus.EventInput{
		Stream:  eventbus.StreamSync,
		Subject: id,
		Body:    action,
		Payload: payload,
	}); err != nil {
		log.Printf("[lifecycle] journal %s %s: %v", action, id, err)
	}
}
