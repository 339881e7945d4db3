package history

import (
	"context"
	"time"
)

// EventType classifies a worker lifecycle event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
)

// Event is one worker lifecycle transition, as exported to audit/analytics
// systems. ExitInfo is a rendered exit description for stop events and empty
// for starts.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Worker     string    `json:"worker"`
	PID        int       `json:"pid"`
	State      string    `json:"state"`
	Restarts   int       `json:"restarts"`
	ExitInfo   string    `json:"exit_info,omitempty"`
}

// Sink is a destination for lifecycle events. Implementations must be safe
// for concurrent use; Send failures are logged by the caller and never block
// supervision.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
