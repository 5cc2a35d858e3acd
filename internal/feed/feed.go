// Package feed keeps the live entity set converged with the external NPC
// catalog. A Subscriber holds two logical subscriptions, the structured
// change stream from the catalog store and an optional low-latency broadcast
// channel from the control plane, and funnels both into the same
// reconciliation path against the lifecycle manager.
package feed

import (
	"context"

	"github.com/tidegate/worldsync/internal/npc"
)

type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Change is one row-level event from the catalog change stream. New carries
// the row after the change, Old the row before it. DELETE events may carry
// only Old.
type Change struct {
	Action Action         `json:"action"`
	New    *npc.RawRecord `json:"new,omitempty"`
	Old    *npc.RawRecord `json:"old,omitempty"`
}

// Notice is one frame from the broadcast channel. The control plane sends the
// full record with every notice so the subscriber never has to re-query.
type Notice struct {
	Event   string         `json:"event"`
	Payload *npc.RawRecord `json:"payload,omitempty"`
}

const (
	NoticeCreated = "npc_created"
	NoticeUpdated = "npc_updated"
	NoticeDeleted = "npc_deleted"
)

// Status signals from the change-stream transport. Timed-out is informational
// only; the transport retries internally. Closed and error both force a
// reconnect cycle.
type Status int

const (
	StatusConnected Status = iota
	StatusTimedOut
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusTimedOut:
		return "timed_out"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	}
	return "unknown"
}

type Subscription interface {
	Unsubscribe()
}

// Provider is the catalog side of the feed: a change stream plus a full
// catalog query used at startup and on admin resync.
type Provider interface {
	Subscribe(ctx context.Context, onChange func(Change), onStatus func(Status)) (Subscription, error)
	FetchEnabled(ctx context.Context) ([]npc.RawRecord, error)
}

// Broadcast is the secondary best-effort notification channel. Losing it is
// never fatal; the change stream alone keeps the world converged.
type Broadcast interface {
	Subscribe(ctx context.Context, onNotice func(Notice)) (Subscription, error)
}

// Lifecycle is the slice of the lifecycle manager the subscriber drives.
type Lifecycle interface {
	Spawn(ctx context.Context, cfg npc.Config) error
	Update(ctx context.Context, cfg npc.Config) error
	Despawn(ctx context.Context, id string) bool
	Has(id string) bool
}
