package a2a

import (
	"errors"
	"iter"
	"sync"

	"github.com/hupe1980/saathi/core"
)

// ErrOutboxClosed is returned when publishing through a committed or
// discarded outbox.
var ErrOutboxClosed = errors.New("a2a: outbox closed")

var _ core.Channel = (*Outbox)(nil)

type staged struct {
	topic   string
	payload map[string]any
}

// Outbox is the core.Channel handed to one agent execution. Publishes are
// staged until Commit; Subscribe reads the bus as the owning agent.
type Outbox struct {
	bus        *Bus
	scope      *Scope
	sender     string
	subscriber string

	mu     sync.Mutex
	staged []staged
	closed bool
}

// Publish stages a message. It becomes visible to others only after Commit.
func (o *Outbox) Publish(topic string, payload map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	if topic == "" {
		return errors.New("a2a: empty topic")
	}
	o.staged = append(o.staged, staged{topic: topic, payload: core.CloneMap(payload)})
	return nil
}

// Subscribe yields committed messages on topic not yet received by the
// outbox's subscriber: first those on the bus, then those held by the
// enclosing scopes, outermost first. An agent never receives its own
// messages.
func (o *Outbox) Subscribe(topic string) iter.Seq[core.Message] {
	key := cursorKey{subscriber: o.subscriber, topic: topic}
	onBus := o.bus.subscribe(key, o.sender)
	if o.scope == nil {
		return onBus
	}
	return func(yield func(core.Message) bool) {
		for msg := range onBus {
			if !yield(msg) {
				return
			}
		}
		for _, s := range o.scope.chain() {
			for {
				msg, ok := s.next(key, o.sender)
				if !ok {
					break
				}
				if !yield(msg) {
					return
				}
			}
		}
	}
}

// Pending returns the number of staged messages.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.staged)
}

// Commit publishes the staged messages in order, to the outbox's scope when
// it has one, and closes the outbox.
func (o *Outbox) Commit() ([]core.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrOutboxClosed
	}
	o.closed = true
	out := make([]core.Message, 0, len(o.staged))
	for _, s := range o.staged {
		var (
			msg core.Message
			err error
		)
		if o.scope != nil {
			msg, err = o.scope.publish(o.sender, s.topic, s.payload)
		} else {
			msg, err = o.bus.Publish(o.sender, s.topic, s.payload)
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	o.staged = nil
	return out, nil
}

// Discard drops the staged messages and closes the outbox.
func (o *Outbox) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.staged = nil
}
