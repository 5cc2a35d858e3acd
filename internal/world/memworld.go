package world

import (
	"context"
	"log"
	"sync"
)

// MemWorld is an in-memory world runtime. It backs the daemon when no real
// engine is attached and doubles as the test double for everything above the
// world boundary.
type MemWorld struct {
	mu   sync.Mutex
	maps map[string]*MemMap
}

func NewMemWorld(mapIDs ...string) *MemWorld {
	w := &MemWorld{maps: map[string]*MemMap{}}
	for _, id := range mapIDs {
		w.maps[id] = &MemMap{id: id, entities: map[string]*MemHandle{}}
	}
	return w
}

func (w *MemWorld) ResolveMap(ctx context.Context, mapID string) (Map, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.maps[mapID]
	if !ok {
		return nil, ErrMapNotFound
	}
	return m, nil
}

// AddMap registers a map after construction. Used by tests and by hosts that
// load maps lazily.
func (w *MemWorld) AddMap(mapID string) *MemMap {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.maps[mapID]
	if !ok {
		m = &MemMap{id: mapID, entities: map[string]*MemHandle{}}
		w.maps[mapID] = m
	}
	return m
}

type MemMap struct {
	id string

	mu       sync.Mutex
	entities map[string]*MemHandle
}

func (m *MemMap) ID() string { return m.id }

func (m *MemMap) CreateEntity(ctx context.Context, spec EntitySpec) (Handle, error) {
	h := &MemHandle{id: spec.ID, mapID: m.id, name: spec.Name, sprite: spec.Sprite, x: spec.X, y: spec.Y, owner: m}
	m.mu.Lock()
	m.entities[spec.ID] = h
	m.mu.Unlock()
	return h, nil
}

// Entity returns the live handle for id, if present.
func (m *MemMap) Entity(id string) (*MemHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.entities[id]
	return h, ok
}

func (m *MemMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities)
}

// MemHandle is a live entity in a MemMap. After Remove every method is a
// no-op, so a conversation that outlives its entity cannot corrupt state.
type MemHandle struct {
	id     string
	mapID  string
	name   string
	sprite string
	owner  *MemMap

	mu      sync.Mutex
	x, y    int
	removed bool

	// Presented collects text shown to players, newest last.
	Presented []string
}

func (h *MemHandle) ID() string    { return h.id }
func (h *MemHandle) MapID() string { return h.mapID }

func (h *MemHandle) Position() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.x, h.y
}

func (h *MemHandle) SetPosition(x, y int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return
	}
	h.x, h.y = x, y
}

func (h *MemHandle) PresentText(ctx context.Context, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return nil
	}
	h.Presented = append(h.Presented, text)
	log.Printf("[world] %s: %s", h.name, text)
	return nil
}

func (h *MemHandle) Remove() {
	h.mu.Lock()
	if h.removed {
		h.mu.Unlock()
		return
	}
	h.removed = true
	h.mu.Unlock()

	h.owner.mu.Lock()
	delete(h.owner.entities, h.id)
	h.owner.mu.Unlock()
}

func (h *MemHandle) Removed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removed
}
