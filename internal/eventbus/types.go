package eventbus

import "time"

// Streams carried by the bus. StreamSync journals every reconciliation the
// feed applies, StreamConversations journals NPC dialogue activity, and
// StreamErrors collects degraded-mode reports.
const (
	StreamSync          = "sync"
	StreamConversations = "conversations"
	StreamErrors        = "errors"
)

type Event struct {
	ID        string         `json:"id"`
	Stream    string         `json:"stream"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type EventInput struct {
	Stream  string
	Subject string
	Body    string
	Payload map[string]any
}

type ListOptions struct {
	Limit int
	Order string
}
