// Package redis provides a core.SessionStore backed by Redis. Sessions are
// stored as deterministic CBOR under "<prefix><id>" with a TTL equal to the
// idle timeout, so Redis itself expires idle sessions. Every Save refreshes
// the TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/internal/codec"
)

var _ core.SessionStore = (*Store)(nil)

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "saathi:session:"

// Options configures a Store.
type Options struct {
	// Prefix is prepended to every session id. Default DefaultPrefix.
	Prefix string
	// IdleTimeout becomes the key TTL. Zero stores sessions without expiry.
	IdleTimeout time.Duration
	// ScanCount is the COUNT hint used while scanning for open sessions.
	ScanCount int64
	// Clock returns the current time. Default time.Now.
	Clock func() time.Time
}

// Store keeps sessions in Redis.
type Store struct {
	rdb  redis.UniversalClient
	opts Options
}

// New wraps an existing Redis client. The caller owns the client.
func New(rdb redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{
		Prefix:      DefaultPrefix,
		IdleTimeout: 30 * time.Minute,
		ScanCount:   100,
		Clock:       time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{rdb: rdb, opts: opts}
}

func (s *Store) key(id string) string { return s.opts.Prefix + id }

// Get loads a session. A missing or expired key yields core.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id string) (*core.Session, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %q: %w", id, core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get session %q: %w", id, err)
	}
	return decode(raw)
}

// Create stores a fresh session, overwriting any existing one.
func (s *Store) Create(ctx context.Context, id string) (*core.Session, error) {
	sess := core.NewSession(id)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save writes the session and refreshes its TTL.
func (s *Store) Save(ctx context.Context, sess *core.Session) error {
	clone := sess.Clone()
	clone.Touch(s.opts.Clock().UTC())
	raw, err := codec.Marshal(clone)
	if err != nil {
		return fmt.Errorf("redis: encode session %q: %w", sess.ID, err)
	}
	if err := s.rdb.Set(ctx, s.key(sess.ID), raw, s.opts.IdleTimeout).Err(); err != nil {
		return fmt.Errorf("redis: save session %q: %w", sess.ID, err)
	}
	return nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis: delete session %q: %w", id, err)
	}
	return nil
}

// OpenScratchKeys scans every live session and unions their scratch
// references.
// Keys that expire between SCAN and MGET are skipped.
func (s *Store) OpenScratchKeys(ctx context.Context) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	iter := s.rdb.Scan(ctx, 0, s.opts.Prefix+"*", s.opts.ScanCount).Iterator()

	batch := make([]string, 0, s.opts.ScanCount)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vals, err := s.rdb.MGet(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis: mget sessions: %w", err)
		}
		for _, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			sess, err := decode([]byte(str))
			if err != nil {
				return err
			}
			for _, k := range sess.ScratchRefs() {
				keys[k] = struct{}{}
			}
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= s.opts.ScanCount {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan sessions: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Sweep is a no-op: Redis expires idle sessions through the key TTL.
func (s *Store) Sweep(context.Context) (int, error) { return 0, nil }

func decode(raw []byte) (*core.Session, error) {
	sess := core.NewSession("")
	if err := codec.Unmarshal(raw, sess); err != nil {
		return nil, fmt.Errorf("redis: decode session: %w", err)
	}
	return sess, nil
}
