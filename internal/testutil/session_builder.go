package testutil

import (
	"time"

	"github.com/hupe1980/saathi/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("s1").Scratch("study_focus", "math").Turn("run-1", "help me plan", nil).Build()
type SessionBuilder struct {
	id      string
	scratch map[string]any
	turns   []core.Turn
	touched time.Time
}

// NewSessionBuilder creates a builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, scratch: map[string]any{}}
}

// Scratch sets a scratch key (chainable).
func (b *SessionBuilder) Scratch(key string, val any) *SessionBuilder {
	b.scratch[key] = val
	return b
}

// Turn appends a turn. The last turn is the one agents read as their input
// (chainable).
func (b *SessionBuilder) Turn(runID, input string, fields map[string]any) *SessionBuilder {
	b.turns = append(b.turns, core.Turn{RunID: runID, Input: input, Fields: fields})
	return b
}

// CompletedTurn appends a finished turn for a capability (chainable).
func (b *SessionBuilder) CompletedTurn(runID string, capability core.Capability, input, response string) *SessionBuilder {
	b.turns = append(b.turns, core.Turn{
		RunID:      runID,
		Capability: capability,
		Input:      input,
		Response:   response,
		Status:     core.StatusSucceeded,
	})
	return b
}

// Touched sets the last activity time (chainable).
func (b *SessionBuilder) Touched(at time.Time) *SessionBuilder {
	b.touched = at
	return b
}

// Build returns the session.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id)
	s.ApplyScratch(b.scratch)
	for _, t := range b.turns {
		s.AppendTurn(t)
	}
	if !b.touched.IsZero() {
		s.Touch(b.touched)
	}
	return s
}
