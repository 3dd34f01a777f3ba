package core

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Turn is one user input plus the system's resulting response.
type Turn struct {
	RunID      string         `json:"run_id" cbor:"run_id"`
	Capability Capability     `json:"capability" cbor:"capability"`
	Input      string         `json:"input" cbor:"input"`
	Fields     map[string]any `json:"fields,omitempty" cbor:"fields,omitempty"`
	Outputs    []Output       `json:"outputs,omitempty" cbor:"outputs,omitempty"`
	Response   string         `json:"response" cbor:"response"`
	Status     RunStatus      `json:"status" cbor:"status"`
	Started    time.Time      `json:"started" cbor:"started"`
	Finished   time.Time      `json:"finished" cbor:"finished"`
}

// Session is the per-user conversational container. It tracks the ordered
// turn history plus a scratch map that lives only as long as the session.
// It is safe for concurrent access.
//
// Contract:
//   - Mutations update Updated
//   - Turns / Scratch accessors return copies
//   - Clone performs deep copies of maps/slices for safe divergence
type Session struct {
	ID       string            `json:"id" cbor:"id"`
	Turns    []Turn            `json:"turns" cbor:"turns"`
	Scratch  map[string]any    `json:"scratch" cbor:"scratch"`
	Created  time.Time         `json:"created" cbor:"created"`
	Updated  time.Time         `json:"updated" cbor:"updated"`
	Metadata map[string]string `json:"metadata,omitempty" cbor:"metadata,omitempty"`
	mu       sync.RWMutex
}

// NewSession creates a new empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, Turns: []Turn{}, Scratch: map[string]any{}, Created: now, Updated: now, Metadata: map[string]string{}}
}

// GetScratch returns the value and existence flag for a scratch key.
func (s *Session) GetScratch(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Scratch[key]
	return v, ok
}

// SetScratch sets a scratch key/value pair.
func (s *Session) SetScratch(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setScratchLocked(key, value)
	s.Updated = time.Now().UTC()
}

// ApplyScratch merges a scratch delta. A nil value removes the key.
func (s *Session) ApplyScratch(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.setScratchLocked(k, v)
	}
	s.Updated = time.Now().UTC()
}

func (s *Session) setScratchLocked(key string, value any) {
	if s.Scratch == nil {
		s.Scratch = map[string]any{}
	}
	if value == nil {
		delete(s.Scratch, key)
		return
	}
	s.Scratch[key] = value
}

// ScratchKeys returns the sorted scratch keys.
func (s *Session) ScratchKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.Scratch))
}

// ScratchRefs returns every natural key the scratch map refers to: the keys
// themselves plus string values, including strings inside slices.
func (s *Session) ScratchRefs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := map[string]struct{}{}
	for k, v := range s.Scratch {
		refs[k] = struct{}{}
		switch v := v.(type) {
		case string:
			if v != "" {
				refs[v] = struct{}{}
			}
		case []string:
			for _, e := range v {
				refs[e] = struct{}{}
			}
		case []any:
			for _, e := range v {
				if str, ok := e.(string); ok {
					refs[str] = struct{}{}
				}
			}
		}
	}
	return slices.Sorted(maps.Keys(refs))
}

// AppendTurn adds a completed turn to the history.
func (s *Session) AppendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns = append(s.Turns, t)
	s.Updated = time.Now().UTC()
}

// GetTurns returns a copy of the turn history.
func (s *Session) GetTurns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.Turns)
}

// TurnCount returns the number of completed turns.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Turns)
}

// LastUpdated returns the time of the last mutation.
func (s *Session) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Updated
}

// Touch marks the session as active at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updated = now
}

// Expired reports whether the session has been idle for longer than idle.
// A non-positive idle timeout never expires.
func (s *Session) Expired(now time.Time, idle time.Duration) bool {
	if idle <= 0 {
		return false
	}
	return now.Sub(s.LastUpdated()) > idle
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:       s.ID,
		Turns:    make([]Turn, len(s.Turns)),
		Scratch:  make(map[string]any, len(s.Scratch)),
		Created:  s.Created,
		Updated:  s.Updated,
		Metadata: make(map[string]string, len(s.Metadata)),
	}
	for i, t := range s.Turns {
		t.Fields = CloneMap(t.Fields)
		t.Outputs = slices.Clone(t.Outputs)
		clone.Turns[i] = t
	}
	for k, v := range s.Scratch {
		clone.Scratch[k] = CloneValue(v)
	}
	maps.Copy(clone.Metadata, s.Metadata)
	return clone
}

// SessionStore persists sessions. Get returns ErrSessionNotFound for missing
// or expired sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
	// OpenScratchKeys returns the union of Session.ScratchRefs across all
	// open sessions. Memory compaction never evicts a record whose natural
	// key appears here.
	OpenScratchKeys(ctx context.Context) (map[string]struct{}, error)
}

// CloneMap deep-copies a payload map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the map and slice shapes produced by JSON / CBOR
// decoding. Other values are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
