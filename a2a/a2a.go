// Package a2a implements the run-scoped agent-to-agent channel.
//
// A Bus belongs to exactly one run. Every committed message gets the next
// sequence number of that run, and each subscriber receives each message at
// most once: a cursor per (subscriber, topic) remembers what was handed out,
// so re-subscribing continues where the previous subscription stopped.
//
// Agents never publish to the Bus directly. They get an Outbox that stages
// their publishes; the graph commits the Outbox when the agent succeeds and
// discards it otherwise.
package a2a

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/hupe1980/saathi/core"
)

// Options configures a Bus.
type Options struct {
	// Clock stamps messages. Default time.Now.
	Clock func() time.Time
}

type cursorKey struct {
	subscriber string
	topic      string
}

// Bus is the ordered message log of one run.
type Bus struct {
	runID string
	clock func() time.Time

	mu      sync.Mutex
	seq     uint64
	log     []core.Message
	cursors map[cursorKey]int // index into log of the next candidate
}

// NewBus creates an empty bus for runID.
func NewBus(runID string, optFns ...func(o *Options)) *Bus {
	opts := Options{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{runID: runID, clock: opts.Clock, cursors: map[cursorKey]int{}}
}

// RunID returns the run the bus belongs to.
func (b *Bus) RunID() string { return b.runID }

// Publish appends a message with the next sequence number.
func (b *Bus) Publish(sender, topic string, payload map[string]any) (core.Message, error) {
	if topic == "" {
		return core.Message{}, fmt.Errorf("a2a: publish from %q: empty topic", sender)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msg := core.Message{
		Seq:       b.seq,
		RunID:     b.runID,
		Sender:    sender,
		Topic:     topic,
		Payload:   core.CloneMap(payload),
		Timestamp: b.clock().UTC(),
	}
	b.log = append(b.log, msg)
	return msg, nil
}

// Deliver appends a message that already carries a sequence number, for
// example one relayed from another process. The number must be strictly
// greater than every number seen so far; anything else is a fatal
// ErrSequenceCollision.
func (b *Bus) Deliver(msg core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.RunID != "" && msg.RunID != b.runID {
		return core.Fatal("a2a deliver", fmt.Errorf("message for run %q delivered to run %q", msg.RunID, b.runID))
	}
	if msg.Seq <= b.seq {
		return fmt.Errorf("%w: seq %d after %d", core.ErrSequenceCollision, msg.Seq, b.seq)
	}
	b.seq = msg.Seq
	msg.RunID = b.runID
	msg.Payload = core.CloneMap(msg.Payload)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.clock().UTC()
	}
	b.log = append(b.log, msg)
	return nil
}

// Subscribe returns the messages on topic that subscriber has not received
// yet, in sequence order. The sequence is lazy: messages committed while it
// is being consumed are included. A message counts as received once it has
// been yielded, even if the consumer stops right after. Messages sent by
// subscriber itself are skipped.
func (b *Bus) Subscribe(subscriber, topic string) iter.Seq[core.Message] {
	return b.subscribe(cursorKey{subscriber: subscriber, topic: topic}, subscriber)
}

func (b *Bus) subscribe(key cursorKey, self string) iter.Seq[core.Message] {
	return func(yield func(core.Message) bool) {
		for {
			msg, ok := b.next(key, self)
			if !ok {
				return
			}
			if !yield(msg) {
				return
			}
		}
	}
}

func (b *Bus) next(key cursorKey, self string) (core.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := b.cursors[key]; i < len(b.log); i++ {
		if b.log[i].Topic == key.topic && b.log[i].Sender != self {
			b.cursors[key] = i + 1
			return cloneMessage(b.log[i]), true
		}
	}
	b.cursors[key] = len(b.log)
	return core.Message{}, false
}

// History returns every committed message in sequence order.
func (b *Bus) History() []core.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.Message, len(b.log))
	for i, m := range b.log {
		out[i] = cloneMessage(m)
	}
	return out
}

// Len returns the number of committed messages.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log)
}

// OutboxOptions configures an Outbox.
type OutboxOptions struct {
	// Subscriber is the identity delivery cursors are kept for. Defaults to
	// the agent name. Giving each execution its own subscriber lets a rerun
	// of the same agent (a loop iteration) read the topic from the start.
	Subscriber string
	// Scope holds the committed messages back until the scope itself is
	// committed. Nil commits straight to the bus.
	Scope *Scope
}

// Outbox returns a fresh staging channel for one execution of agent.
func (b *Bus) Outbox(agent string, optFns ...func(o *OutboxOptions)) *Outbox {
	opts := OutboxOptions{Subscriber: agent}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Outbox{bus: b, scope: opts.Scope, sender: agent, subscriber: opts.Subscriber}
}

func cloneMessage(m core.Message) core.Message {
	m.Payload = core.CloneMap(m.Payload)
	return m
}
