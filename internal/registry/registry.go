// Package registry tracks which NPC ids are currently live in the world.
// Absence from the registry is the ground truth for "not spawned",
// independent of any cached template.
package registry

import (
	"sync"

	"github.com/tidegate/worldsync/internal/world"
)

// Controller is the per-entity behavior loop attached to a live handle. The
// registry only needs to be able to tear it down.
type Controller interface {
	Shutdown()
}

type Entry struct {
	ID         string
	Handle     world.Handle
	Controller Controller
}

// Registry maps id to its single live entry. All mutation goes through the
// lifecycle manager, which serializes per id.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Put records the live entry for id. It reports false if an entry already
// exists, in which case the registry is unchanged: at most one live handle
// per id, ever.
func (r *Registry) Put(e Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.ID]; exists {
		return false
	}
	r.entries[e.ID] = e
	return true
}

// Remove erases the entry for id and returns it.
func (r *Registry) Remove(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
