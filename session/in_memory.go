package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/saathi/core"
)

// Options configures an InMemoryStore.
type Options struct {
	// IdleTimeout expires sessions not updated for this long. Zero disables
	// expiry.
	IdleTimeout time.Duration
	// Clock returns the current time. Default time.Now.
	Clock func() time.Time
}

// InMemoryStore is a volatile SessionStore implementation storing sessions in
// a process local map. It is safe for concurrent access and best suited for
// tests or single-process deployments. Each returned session is cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	opts     Options
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{IdleTimeout: 30 * time.Minute, Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{sessions: make(map[string]*core.Session), opts: opts}
}

// Get returns a clone of an open session. Missing and expired sessions yield
// core.ErrSessionNotFound; expired ones are dropped on the way.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, core.ErrSessionNotFound)
	}
	if sess.Expired(s.opts.Clock(), s.opts.IdleTimeout) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("session %q expired: %w", id, core.ErrSessionNotFound)
	}
	return sess.Clone(), nil
}

// Create forces the creation (or overwriting) of a session with the given id.
func (s *InMemoryStore) Create(_ context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := core.NewSession(id)
	sess.Touch(s.opts.Clock().UTC())
	s.sessions[id] = sess
	return sess.Clone(), nil
}

// Save stores a clone of the provided session snapshot and marks it active.
func (s *InMemoryStore) Save(_ context.Context, sess *core.Session) error {
	clone := sess.Clone()
	clone.Touch(s.opts.Clock().UTC())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = clone
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// OpenScratchKeys returns the union of scratch references of all unexpired
// sessions.
func (s *InMemoryStore) OpenScratchKeys(_ context.Context) (map[string]struct{}, error) {
	now := s.opts.Clock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := map[string]struct{}{}
	for _, sess := range s.sessions {
		if sess.Expired(now, s.opts.IdleTimeout) {
			continue
		}
		for _, k := range sess.ScratchRefs() {
			keys[k] = struct{}{}
		}
	}
	return keys, nil
}

// Sweep drops every expired session and returns how many were removed.
func (s *InMemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.opts.Clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now, s.opts.IdleTimeout) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
