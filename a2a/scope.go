package a2a

import (
	"errors"
	"sync"

	"github.com/hupe1980/saathi/core"
)

// ErrScopeClosed is returned when using a committed or discarded scope.
var ErrScopeClosed = errors.New("a2a: scope closed")

// Scope holds messages committed by outboxes of one tentative execution, such
// as a loop iteration that may still be rejected. Messages in a scope carry no
// sequence number; they are readable by outboxes of the same scope and reach
// the parent (bus or enclosing scope) only on Commit.
type Scope struct {
	bus    *Bus
	parent *Scope

	mu      sync.Mutex
	log     []core.Message
	cursors map[cursorKey]int
	closed  bool
}

// Scope opens a top-level scope on the bus.
func (b *Bus) Scope() *Scope {
	return &Scope{bus: b, cursors: map[cursorKey]int{}}
}

// Scope opens a scope nested in s.
func (s *Scope) Scope() *Scope {
	return &Scope{bus: s.bus, parent: s, cursors: map[cursorKey]int{}}
}

func (s *Scope) publish(sender, topic string, payload map[string]any) (core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Message{}, ErrScopeClosed
	}
	msg := core.Message{
		RunID:     s.bus.runID,
		Sender:    sender,
		Topic:     topic,
		Payload:   core.CloneMap(payload),
		Timestamp: s.bus.clock().UTC(),
	}
	s.log = append(s.log, msg)
	return msg, nil
}

func (s *Scope) next(key cursorKey, self string) (core.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := s.cursors[key]; i < len(s.log); i++ {
		if s.log[i].Topic == key.topic && s.log[i].Sender != self {
			s.cursors[key] = i + 1
			return cloneMessage(s.log[i]), true
		}
	}
	s.cursors[key] = len(s.log)
	return core.Message{}, false
}

// Len returns the number of messages held by the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// Commit hands the held messages to the parent in order and closes the scope.
// Messages reaching the bus get their sequence numbers there.
func (s *Scope) Commit() ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrScopeClosed
	}
	s.closed = true
	out := make([]core.Message, 0, len(s.log))
	for _, m := range s.log {
		var (
			msg core.Message
			err error
		)
		if s.parent != nil {
			msg, err = s.parent.publish(m.Sender, m.Topic, m.Payload)
		} else {
			msg, err = s.bus.Publish(m.Sender, m.Topic, m.Payload)
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	s.log = nil
	return out, nil
}

// Discard drops the held messages and closes the scope. Discarding a closed
// scope is a no-op.
func (s *Scope) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.log = nil
}

// chain returns s and its ancestors, outermost first.
func (s *Scope) chain() []*Scope {
	var out []*Scope
	for c := s; c != nil; c = c.parent {
		out = append(out, c)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
