// Package world defines the boundary to the running game world. The
// reconciler only ever talks to these interfaces; the real engine (or the
// in-memory runtime below) is injected at startup.
package world

import (
	"context"
	"errors"
)

var ErrMapNotFound = errors.New("map not found")

// Resolver looks up a map by id. Resolution may load the map on demand, so
// it takes a context and can fail with ErrMapNotFound.
type Resolver interface {
	ResolveMap(ctx context.Context, mapID string) (Map, error)
}

// Map is a loaded map that can host entities.
type Map interface {
	ID() string
	CreateEntity(ctx context.Context, spec EntitySpec) (Handle, error)
}

// EntitySpec describes the entity to instantiate.
type EntitySpec struct {
	ID     string
	Name   string
	Sprite string
	X      int
	Y      int
}

// Handle is a live entity in the world. The registry owns it while present;
// all methods must be safe after Remove (they become no-ops).
type Handle interface {
	ID() string
	MapID() string
	Position() (x, y int)
	SetPosition(x, y int)
	PresentText(ctx context.Context, text string) error
	Remove()
}
