package eventbus

import "strings"

// DefaultOrder picks the listing order per stream. The sync journal reads
// naturally oldest-first; error and conversation feeds newest-first.
func DefaultOrder(stream string) string {
	switch strings.TrimSpace(stream) {
	case StreamSync:
		return "fifo"
	default:
		return "lifo"
	}
}
