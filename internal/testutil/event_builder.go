package testutil

import (
	"time"

	"github.com/hupe1980/saathi/core"
)

// EventBuilder provides a fluent helper for constructing observer events.
// Example:
//
//	ev := NewEventBuilder(core.EventNodeExited).Run("run-1").Path("support/1/emotional").Leaf().Build()
type EventBuilder struct {
	ev core.Event
}

// NewEventBuilder creates a builder for an event of the given kind.
func NewEventBuilder(kind core.EventKind) *EventBuilder {
	return &EventBuilder{ev: core.Event{Kind: kind, Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}}
}

// Run sets the run id (chainable).
func (b *EventBuilder) Run(id string) *EventBuilder { b.ev.RunID = id; return b }

// Path sets the node path (chainable).
func (b *EventBuilder) Path(p string) *EventBuilder { b.ev.NodePath = p; return b }

// Duration sets the node or run duration (chainable).
func (b *EventBuilder) Duration(d time.Duration) *EventBuilder { b.ev.Duration = d; return b }

// Status sets the outcome status (chainable).
func (b *EventBuilder) Status(s core.RunStatus) *EventBuilder { b.ev.Status = s; return b }

// Attempt sets the retry attempt (chainable).
func (b *EventBuilder) Attempt(n int) *EventBuilder { b.ev.Attempt = n; return b }

// Err sets the event error (chainable).
func (b *EventBuilder) Err(err error) *EventBuilder { b.ev.Err = err.Error(); return b }

// Attr sets one attribute (chainable).
func (b *EventBuilder) Attr(key string, val any) *EventBuilder {
	if b.ev.Attrs == nil {
		b.ev.Attrs = map[string]any{}
	}
	b.ev.Attrs[key] = val
	return b
}

// Leaf marks the event as emitted by a leaf node (chainable).
func (b *EventBuilder) Leaf() *EventBuilder { return b.Attr("kind", "leaf") }

// Build returns the event.
func (b *EventBuilder) Build() core.Event { return b.ev }
