package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/internal/codec"
	"github.com/hupe1980/saathi/logging"
)

// Options configures an InMemoryStore.
type Options struct {
	// Budget is the bank budget B in size units. Default 1 MiB.
	Budget int
	// Keep is the number K of highest-importance records compaction always
	// retains. Default 5.
	Keep int
	// TargetRatio is the fill ratio compaction evicts down to. Default 0.8.
	TargetRatio float64
	// MaxEvictRatio bounds the share of records one pass may evict. Default 0.5.
	MaxEvictRatio float64
	// HalfLife is the recency decay half life. Default 24h.
	HalfLife time.Duration
	// Pins reports keys referenced by open sessions. Optional.
	Pins PinSource
	// Journal makes the store durable. Optional.
	Journal Journal
	// Observer receives compaction events. Optional.
	Observer core.Observer
	// Logger for store diagnostics. Optional.
	Logger logging.Logger
	// Clock returns the current time. Default time.Now.
	Clock func() time.Time
}

// InMemoryStore is the budgeted memory bank.
//
// Concurrency: writers of the same key are serialized by a per-key lock.
// Writers share the store-wide phase lock; compaction takes it exclusively, so
// no write lands while a compaction plan is computed and applied. Readers only
// take the short-lived data lock and are never blocked for the duration of a
// compaction.
type InMemoryStore struct {
	opts Options

	phase sync.RWMutex // writers: shared, compaction: exclusive
	mu    sync.RWMutex // guards records and size
	locks *keyLocks

	records map[core.RecordKey]*core.MemoryRecord
	size    int

	compactions atomic.Int64
	evictions   atomic.Int64
}

// New creates an empty store.
func New(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		Budget:        1 << 20,
		Keep:          5,
		TargetRatio:   0.8,
		MaxEvictRatio: 0.5,
		HalfLife:      24 * time.Hour,
		Clock:         time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Observer == nil {
		opts.Observer = core.NopObserver{}
	}

	return &InMemoryStore{
		opts:    opts,
		locks:   newKeyLocks(),
		records: make(map[core.RecordKey]*core.MemoryRecord),
	}
}

// PutOption tunes a single Put.
type PutOption func(*putConfig)

type putConfig struct {
	ifVersion *uint64
}

// IfVersion makes the put a compare-and-update: it only lands when the stored
// record's version equals v (0 meaning "does not exist yet"). Otherwise Put
// returns a *core.SupersededError carrying the current record.
func IfVersion(v uint64) PutOption {
	return func(c *putConfig) { c.ifVersion = &v }
}

// maxCompactAttempts bounds how often one Put re-runs compaction when
// concurrent writers refill the space it freed.
const maxCompactAttempts = 3

// Put inserts or updates rec keyed by rec.Key and returns the stored record.
// When the write would exceed the budget a compaction runs first.
func (s *InMemoryStore) Put(ctx context.Context, rec core.MemoryRecord, optFns ...PutOption) (core.MemoryRecord, error) {
	var cfg putConfig
	for _, fn := range optFns {
		fn(&cfg)
	}

	if err := validateKey(rec.Key); err != nil {
		return core.MemoryRecord{}, err
	}

	size := rec.Size
	if size <= 0 {
		var err error
		if size, err = codec.Size(rec.Payload); err != nil {
			return core.MemoryRecord{}, fmt.Errorf("memory: sizing %s: %w", rec.Key, err)
		}
	}

	if size > s.opts.Budget {
		return core.MemoryRecord{}, fmt.Errorf("memory: put %s (size %d, budget %d): %w", rec.Key, size, s.opts.Budget, core.ErrRecordTooLarge)
	}

	digest, err := codec.Digest(rec.Payload)
	if err != nil {
		return core.MemoryRecord{}, fmt.Errorf("memory: digest %s: %w", rec.Key, err)
	}

	kl, ticket := s.locks.enter(rec.Key)
	defer s.locks.leave(rec.Key, kl)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.MemoryRecord{}, err
		}

		stored, reserve, err := s.tryPut(ctx, kl, ticket, rec, size, digest, cfg)
		if err == nil || !errors.Is(err, errNeedsCompaction) {
			return stored, err
		}

		if attempt >= maxCompactAttempts {
			return core.MemoryRecord{}, fmt.Errorf("memory: put %s: %w", rec.Key, core.ErrCapacityExceeded)
		}

		if _, err := s.compact(ctx, reserve, rec.Key); err != nil {
			return core.MemoryRecord{}, fmt.Errorf("memory: put %s: %w", rec.Key, err)
		}
	}
}

var errNeedsCompaction = errors.New("memory: needs compaction")

// tryPut performs one attempt under the shared phase lock and the key lock.
// It returns errNeedsCompaction together with the space the write needs when
// the budget would be exceeded.
func (s *InMemoryStore) tryPut(ctx context.Context, kl *keyLock, ticket uint64, rec core.MemoryRecord, size int, digest string, cfg putConfig) (core.MemoryRecord, int, error) {
	s.phase.RLock()
	defer s.phase.RUnlock()

	kl.mu.Lock()
	defer kl.mu.Unlock()

	s.mu.RLock()
	cur, exists := s.records[rec.Key]
	var current core.MemoryRecord
	if exists {
		current = cur.Clone()
	}
	bankSize := s.size
	s.mu.RUnlock()

	if kl.applied > ticket {
		return core.MemoryRecord{}, 0, &core.SupersededError{Key: rec.Key, Current: current}
	}

	if cfg.ifVersion != nil && current.Version != *cfg.ifVersion {
		return core.MemoryRecord{}, 0, &core.SupersededError{Key: rec.Key, Current: current}
	}

	now := s.opts.Clock().UTC()

	// Identical rewrites (a loop iteration reproducing the same draft) keep
	// the stored revision and only refresh its access time.
	if exists && current.Digest == digest && current.Importance == rec.Importance && current.Size == size {
		s.mu.Lock()
		cur.AccessedAt = now
		current.AccessedAt = now
		s.mu.Unlock()
		kl.applied = ticket
		return current, 0, nil
	}

	delta := size
	if exists {
		delta -= current.Size
	}

	if bankSize+delta > s.opts.Budget {
		return core.MemoryRecord{}, delta, errNeedsCompaction
	}

	stored := core.MemoryRecord{
		ID:         rec.ID,
		Key:        rec.Key,
		Payload:    core.CloneMap(rec.Payload),
		Importance: rec.Importance,
		Size:       size,
		Version:    current.Version + 1,
		Digest:     digest,
		CreatedAt:  now,
		AccessedAt: now,
	}
	if exists {
		stored.ID = current.ID
		stored.CreatedAt = current.CreatedAt
	}
	if stored.ID == "" {
		stored.ID = core.NewID()
	}

	if s.opts.Journal != nil {
		if err := s.opts.Journal.Upsert(ctx, stored); err != nil {
			return core.MemoryRecord{}, 0, fmt.Errorf("memory: journal upsert %s: %w", rec.Key, err)
		}
	}

	s.mu.Lock()
	s.records[rec.Key] = &stored
	s.size += delta
	s.mu.Unlock()

	kl.applied = ticket

	s.opts.Logger.Debug("memory record stored", "key", rec.Key.String(), "version", stored.Version, "size", size)

	return stored.Clone(), 0, nil
}

// Get returns the record for key or core.ErrNotFound. A hit refreshes the
// record's access time.
func (s *InMemoryStore) Get(ctx context.Context, sessionID string, category core.Category, name string) (core.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return core.MemoryRecord{}, err
	}

	key := core.RecordKey{SessionID: sessionID, Category: category, Name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return core.MemoryRecord{}, fmt.Errorf("memory: %s: %w", key, core.ErrNotFound)
	}

	rec.AccessedAt = s.opts.Clock().UTC()

	return rec.Clone(), nil
}

// Query returns a lazy cursor over the session's records in category, most
// relevant first. An empty category matches every category; a non-positive
// limit means no limit. The ranking is fixed when Query is called; records
// evicted or deleted before they are reached are skipped.
func (s *InMemoryStore) Query(ctx context.Context, sessionID string, category core.Category, limit int, order core.Order) *core.Cursor {
	s.mu.RLock()
	ranked := make([]core.MemoryRecord, 0)
	for key, rec := range s.records {
		if key.SessionID != sessionID || (category != "" && key.Category != category) {
			continue
		}
		// Only the ranking fields are needed up front; payloads are read
		// when the cursor reaches the record.
		ranked = append(ranked, core.MemoryRecord{Key: key, Importance: rec.Importance, AccessedAt: rec.AccessedAt})
	}
	s.mu.RUnlock()

	core.SortRecords(ranked, order)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	i := 0
	return core.NewCursor(func() (core.MemoryRecord, bool) {
		for i < len(ranked) {
			if ctx.Err() != nil {
				return core.MemoryRecord{}, false
			}
			key := ranked[i].Key
			i++
			s.mu.RLock()
			rec, ok := s.records[key]
			var out core.MemoryRecord
			if ok {
				out = rec.Clone()
			}
			s.mu.RUnlock()
			if ok {
				return out, true
			}
		}
		return core.MemoryRecord{}, false
	})
}

// Snapshot returns a consistent copy of every record owned by sessionID.
func (s *InMemoryStore) Snapshot(ctx context.Context, sessionID string) ([]core.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.MemoryRecord, 0)
	for key, rec := range s.records {
		if key.SessionID == sessionID {
			out = append(out, rec.Clone())
		}
	}

	core.SortRecords(out, core.OrderRecency)

	return out, nil
}

// Delete removes the record for key. Deleting a missing key is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, key core.RecordKey) error {
	kl, _ := s.locks.enter(key)
	defer s.locks.leave(key, kl)

	s.phase.RLock()
	defer s.phase.RUnlock()

	kl.mu.Lock()
	defer kl.mu.Unlock()

	if s.opts.Journal != nil {
		if err := s.opts.Journal.Delete(ctx, key); err != nil {
			return fmt.Errorf("memory: journal delete %s: %w", key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		s.size -= rec.Size
		delete(s.records, key)
	}

	return nil
}

// Restore replaces the bank with the journal's contents. It does not compact:
// a bank restored over budget is compacted by the next write.
func (s *InMemoryStore) Restore(ctx context.Context) error {
	if s.opts.Journal == nil {
		return nil
	}

	records, err := s.opts.Journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("memory: journal load: %w", err)
	}

	s.phase.Lock()
	defer s.phase.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[core.RecordKey]*core.MemoryRecord, len(records))
	s.size = 0

	for i := range records {
		rec := records[i]
		s.records[rec.Key] = &rec
		s.size += rec.Size
	}

	s.opts.Logger.Info("memory restored from journal", "records", len(records), "size", s.size)

	return nil
}

// Stats is a point-in-time summary of the bank.
type Stats struct {
	Records     int
	Size        int
	Budget      int
	Compactions int64
	Evictions   int64
}

// Stats returns the current bank summary.
func (s *InMemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Records:     len(s.records),
		Size:        s.size,
		Budget:      s.opts.Budget,
		Compactions: s.compactions.Load(),
		Evictions:   s.evictions.Load(),
	}
}

func validateKey(key core.RecordKey) error {
	switch {
	case key.SessionID == "":
		return core.Fatal("memory.put", errors.New("empty session id"))
	case !key.Category.Valid():
		return core.Fatal("memory.put", fmt.Errorf("unknown category %q", key.Category))
	case key.Name == "":
		return core.Fatal("memory.put", errors.New("empty natural key"))
	}
	return nil
}
