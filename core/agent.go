package core

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"
)

// Capability names the kind of help a graph provides. Turns request a
// capability; the orchestrator resolves it to a registered graph.
type Capability string

const (
	CapabilityEmotionalSupport Capability = "emotional-support"
	CapabilityStudyPlanning    Capability = "study-planning"
	CapabilityCommunity        Capability = "community"
	CapabilitySocial           Capability = "social"
)

// AgentSpec describes a registered agent: what it is called, what it does,
// which inputs it reads and which memory categories it may write.
// Immutable once registered.
type AgentSpec struct {
	Name       string     `json:"name" yaml:"name"`
	Capability Capability `json:"capability" yaml:"capability"`
	Reads      []string   `json:"reads,omitempty" yaml:"reads,omitempty"`
	Writes     []Category `json:"writes,omitempty" yaml:"writes,omitempty"`
}

// Validate checks that the agent description is well formed.
func (s AgentSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAgentSpec)
	}
	for _, c := range s.Writes {
		if !c.Valid() {
			return fmt.Errorf("%w: %s declares unknown category %q", ErrInvalidAgentSpec, s.Name, c)
		}
	}
	return nil
}

// Declares reports whether c is among the declared outputs.
func (s AgentSpec) Declares(c Category) bool {
	return slices.Contains(s.Writes, c)
}

// Output is what an agent hands back to the graph.
type Output struct {
	Agent string         `json:"agent" cbor:"agent"`
	Text  string         `json:"text" cbor:"text"`
	Data  map[string]any `json:"data,omitempty" cbor:"data,omitempty"`
	// Issues lists validation findings on Text. Empty means the text passed
	// every check the agent applies.
	Issues []string `json:"issues,omitempty" cbor:"issues,omitempty"`
	// Degraded is set when a tool or the reasoning gateway failed and the
	// agent fell back to a reduced answer.
	Degraded bool `json:"degraded,omitempty" cbor:"degraded,omitempty"`
	// LowConfidence is set by the loop controller on exhaustion.
	LowConfidence bool `json:"low_confidence,omitempty" cbor:"low_confidence,omitempty"`
}

// Agent is the single polymorphic unit of work. Implementations must be
// callable repeatedly with identical inputs, producing semantically equivalent
// results, and must not mutate shared state: memory writes go into the
// returned Delta and messages go through ch, both committed by the caller only
// when Run succeeds.
type Agent interface {
	Spec() AgentSpec
	Run(ctx context.Context, sess *Session, view MemoryView, ch Channel) (Output, Delta, error)
}

// Message is an A2A message exchanged within one run.
type Message struct {
	Seq       uint64         `json:"seq" cbor:"seq"`
	RunID     string         `json:"run_id" cbor:"run_id"`
	Sender    string         `json:"sender" cbor:"sender"`
	Topic     string         `json:"topic" cbor:"topic"`
	Payload   map[string]any `json:"payload" cbor:"payload"`
	Timestamp time.Time      `json:"timestamp" cbor:"timestamp"`
}

// Channel is the run-scoped message surface handed to an agent. Publishes are
// staged and become visible to other agents only after the publishing agent
// returns successfully. Subscribe yields messages in sequence order, each at
// most once per subscriber per run.
type Channel interface {
	Publish(topic string, payload map[string]any) error
	Subscribe(topic string) iter.Seq[Message]
}
