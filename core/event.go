package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the observability events a run emits.
type EventKind string

const (
	EventRunStarted          EventKind = "run_started"
	EventRunFinished         EventKind = "run_finished"
	EventNodeEntered         EventKind = "node_entered"
	EventNodeExited          EventKind = "node_exited"
	EventRetryAttempted      EventKind = "retry_attempted"
	EventCompactionTriggered EventKind = "compaction_triggered"
)

// Event is a structured observability record. RunID and NodePath correlate
// it with the run and the composition node that produced it; both may be
// empty for events raised outside a run (for example a manual compaction).
type Event struct {
	Kind     EventKind      `json:"kind"`
	RunID    string         `json:"run_id,omitempty"`
	NodePath string         `json:"node_path,omitempty"`
	Time     time.Time      `json:"time"`
	Duration time.Duration  `json:"duration,omitempty"`
	Status   RunStatus      `json:"status,omitempty"`
	Attempt  int            `json:"attempt,omitempty"`
	Err      string         `json:"error,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// NewEvent creates an event of the given kind stamped with the run metadata
// carried by ctx.
func NewEvent(ctx context.Context, kind EventKind) Event {
	ev := Event{Kind: kind, Time: time.Now().UTC(), NodePath: NodePathFromContext(ctx)}
	if info, ok := RunFromContext(ctx); ok {
		ev.RunID = info.RunID
	}
	return ev
}

// Observer receives observability events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// NopObserver discards events.
type NopObserver struct{}

// Observe does nothing.
func (NopObserver) Observe(context.Context, Event) {}

// NewID generates a new unique identifier for runs, records and messages.
func NewID() string {
	return uuid.NewString()
}
