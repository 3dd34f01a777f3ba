package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/saathi/core"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memJournal is an in-process Journal used to seed and inspect stores.
type memJournal struct {
	mu      sync.Mutex
	records map[core.RecordKey]core.MemoryRecord
	failOn  error
}

func newMemJournal(records ...core.MemoryRecord) *memJournal {
	j := &memJournal{records: map[core.RecordKey]core.MemoryRecord{}}
	for _, r := range records {
		j.records[r.Key] = r
	}
	return j
}

func (j *memJournal) Load(context.Context) ([]core.MemoryRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]core.MemoryRecord, 0, len(j.records))
	for _, r := range j.records {
		out = append(out, r)
	}
	return out, nil
}

func (j *memJournal) Upsert(_ context.Context, rec core.MemoryRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failOn != nil {
		return j.failOn
	}
	j.records[rec.Key] = rec
	return nil
}

func (j *memJournal) Delete(_ context.Context, keys ...core.RecordKey) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, k := range keys {
		delete(j.records, k)
	}
	return nil
}

func key(session string, cat core.Category, name string) core.RecordKey {
	return core.RecordKey{SessionID: session, Category: cat, Name: name}
}

func record(k core.RecordKey, size int, importance float64) core.MemoryRecord {
	return core.MemoryRecord{Key: k, Size: size, Importance: importance, Payload: map[string]any{"name": k.Name}}
}

func TestInMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	k := key("s1", core.CategoryStudyPlan, "math")
	first, err := s.Put(ctx, core.MemoryRecord{Key: k, Payload: map[string]any{"hours": 4}, Importance: 0.5})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, uint64(1), first.Version)
	assert.Positive(t, first.Size, "size is derived from the payload encoding")

	second, err := s.Put(ctx, core.MemoryRecord{Key: k, Payload: map[string]any{"hours": 6}, Importance: 0.5})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "updates keep the record identity")
	assert.Equal(t, uint64(2), second.Version)

	got, err := s.Get(ctx, "s1", core.CategoryStudyPlan, "math")
	require.NoError(t, err)
	assert.Equal(t, 6, got.Payload["hours"])

	// returned records are copies
	got.Payload["hours"] = 99
	again, _ := s.Get(ctx, "s1", core.CategoryStudyPlan, "math")
	assert.Equal(t, 6, again.Payload["hours"])

	_, err = s.Get(ctx, "s1", core.CategoryStudyPlan, "art")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryStore_IdenticalRewriteKeepsRevision(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := key("s1", core.CategoryEmotionalPattern, "turn-1")

	a, err := s.Put(ctx, core.MemoryRecord{Key: k, Payload: map[string]any{"mood": "calm", "score": 5}, Importance: 0.4})
	require.NoError(t, err)
	b, err := s.Put(ctx, core.MemoryRecord{Key: k, Payload: map[string]any{"score": 5, "mood": "calm"}, Importance: 0.4})
	require.NoError(t, err)

	assert.Equal(t, a.Version, b.Version)
	assert.Equal(t, a.Digest, b.Digest)
	assert.Equal(t, 1, s.Stats().Records)
}

func TestInMemoryStore_RejectsInvalidKeys(t *testing.T) {
	s := New()
	_, err := s.Put(context.Background(), core.MemoryRecord{Key: key("s1", "bogus", "k")})
	assert.True(t, core.IsFatal(err))
}

func TestInMemoryStore_RecordTooLarge(t *testing.T) {
	s := New(func(o *Options) { o.Budget = 100 })

	_, err := s.Put(context.Background(), record(key("s1", core.CategoryStudyPlan, "huge"), 101, 1))
	require.ErrorIs(t, err, core.ErrRecordTooLarge)
	assert.Equal(t, core.KindCapacity, core.Classify(err))
	assert.Zero(t, s.Stats().Records)
}

// Ten records of size 12 (120 > B=100, restored over budget) plus an eleventh
// put: compaction runs first and the bank ends at or below 0.8·B.
func TestInMemoryStore_CompactsBeforeAcceptingWrite(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	seed := make([]core.MemoryRecord, 0, 10)
	for i := range 10 {
		r := record(key("S1", core.CategoryEmotionalPattern, fmt.Sprintf("r%02d", i)), 12, 0.5)
		if i == 0 {
			r.Importance = 0.95 // oldest but most important
		}
		r.Version = 1
		r.CreatedAt = clock.Now().Add(time.Duration(i) * time.Hour)
		r.AccessedAt = r.CreatedAt
		seed = append(seed, r)
	}
	clock.Advance(12 * time.Hour)

	journal := newMemJournal(seed...)
	s := New(func(o *Options) {
		o.Budget = 100
		o.Keep = 2
		o.Clock = clock.Now
		o.Journal = journal
	})
	require.NoError(t, s.Restore(ctx))
	require.Equal(t, 120, s.Stats().Size)

	stored, err := s.Put(ctx, record(key("S1", core.CategoryEmotionalPattern, "r10"), 12, 0.5))
	require.NoError(t, err)
	assert.Equal(t, "r10", stored.Key.Name)

	stats := s.Stats()
	assert.LessOrEqual(t, stats.Size, 80)
	assert.Equal(t, int64(1), stats.Compactions)
	assert.LessOrEqual(t, stats.Evictions, int64(5), "one pass never evicts more than half the bank")

	// the most important record and the newest ones survive
	for _, name := range []string{"r00", "r08", "r09", "r10"} {
		_, err := s.Get(ctx, "S1", core.CategoryEmotionalPattern, name)
		assert.NoError(t, err, name)
	}
	// the oldest ordinary records were evicted, also from the journal
	_, err = s.Get(ctx, "S1", core.CategoryEmotionalPattern, "r01")
	assert.ErrorIs(t, err, core.ErrNotFound)
	records, _ := journal.Load(ctx)
	assert.Len(t, records, stats.Records)
}

func TestInMemoryStore_NeverEvictsPinnedKeys(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := New(func(o *Options) {
		o.Budget = 100
		o.Keep = 0
		o.Clock = clock.Now
		o.Pins = Pins("p0", "p1")
	})

	// pinned records are the oldest and least important: first in line
	// without the pin
	for _, name := range []string{"p0", "p1"} {
		_, err := s.Put(ctx, record(key("s1", core.CategoryStudyPlan, name), 10, 0.01))
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	for i := range 8 {
		_, err := s.Put(ctx, record(key("s1", core.CategoryStudyPlan, fmt.Sprintf("n%d", i)), 10, 0.5))
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	require.Equal(t, 100, s.Stats().Size)

	report, err := s.Compact(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, report.SizeAfter, 80)
	for _, k := range report.Evicted {
		assert.NotContains(t, []string{"p0", "p1"}, k.Name)
	}
	_, err = s.Get(ctx, "s1", core.CategoryStudyPlan, "p0")
	assert.NoError(t, err)
}

func TestInMemoryStore_CapacityExceededLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	journal := newMemJournal()
	s := New(func(o *Options) {
		o.Budget = 100
		o.Keep = 0
		o.Journal = journal
		o.Pins = Pins("a", "b", "c", "d")
	})

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Put(ctx, record(key("s1", core.CategorySocialPostDraft, name), 20, 0.5))
		require.NoError(t, err)
	}
	before := s.Stats()

	// only "e" is evictable: 100 - 20 = 80 is not enough room for 20 more
	// under the 80 target
	_, err := s.Put(ctx, record(key("s1", core.CategorySocialPostDraft, "f"), 20, 0.5))
	require.ErrorIs(t, err, core.ErrCapacityExceeded)

	after := s.Stats()
	assert.Equal(t, before.Records, after.Records)
	assert.Equal(t, before.Size, after.Size)
	records, _ := journal.Load(ctx)
	assert.Len(t, records, 5)
}

func TestInMemoryStore_EvictionCapIsHalfTheBank(t *testing.T) {
	ctx := context.Background()
	s := New(func(o *Options) {
		o.Budget = 100
		o.Keep = 0
		o.TargetRatio = 0.1
	})
	for i := range 10 {
		_, err := s.Put(ctx, record(key("s1", core.CategoryCommunityEvent, fmt.Sprintf("e%d", i)), 10, 0.5))
		require.NoError(t, err)
	}

	// reaching 10 would require evicting 9 of 10 records
	_, err := s.Compact(ctx)
	require.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.Equal(t, 10, s.Stats().Records)
}

func TestInMemoryStore_QueryOrders(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := New(func(o *Options) { o.Clock = clock.Now })

	for i, imp := range []float64{0.2, 0.9, 0.5} {
		_, err := s.Put(ctx, record(key("s1", core.CategoryStudyPlan, fmt.Sprintf("k%d", i)), 1, imp))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	_, err := s.Put(ctx, record(key("s2", core.CategoryStudyPlan, "other"), 1, 1))
	require.NoError(t, err)

	byRecency := s.Query(ctx, "s1", core.CategoryStudyPlan, 0, core.OrderRecency).Collect()
	assert.Equal(t, []string{"k2", "k1", "k0"}, names(byRecency))

	cur := s.Query(ctx, "s1", core.CategoryStudyPlan, 2, core.OrderImportance)
	top, ok := cur.Next()
	require.True(t, ok)
	assert.Equal(t, "k1", top.Key.Name)
	assert.Equal(t, []string{"k2"}, names(cur.Collect()))
	_, ok = cur.Next()
	assert.False(t, ok, "cursors are not restartable")
}

func TestInMemoryStore_QuerySkipsRecordsDeletedMidIteration(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := New(func(o *Options) { o.Clock = clock.Now })
	for _, n := range []string{"a", "b", "c"} {
		_, err := s.Put(ctx, record(key("s1", core.CategoryStudyPlan, n), 1, 0.5))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	cur := s.Query(ctx, "s1", core.CategoryStudyPlan, 0, core.OrderRecency)
	first, _ := cur.Next()
	assert.Equal(t, "c", first.Key.Name)
	require.NoError(t, s.Delete(ctx, key("s1", core.CategoryStudyPlan, "b")))

	assert.Equal(t, []string{"a"}, names(cur.Collect()))
}

func TestInMemoryStore_IfVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := key("s1", core.CategoryStudyPlan, "math")

	_, err := s.Put(ctx, record(k, 1, 0.5), IfVersion(0))
	require.NoError(t, err)

	_, err = s.Put(ctx, core.MemoryRecord{Key: k, Size: 2, Importance: 0.5}, IfVersion(0))
	var se *core.SupersededError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, uint64(1), se.Current.Version)

	updated, err := s.Put(ctx, core.MemoryRecord{Key: k, Size: 2, Importance: 0.5}, IfVersion(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Version)
}

func TestInMemoryStore_EarlierArrivalLosingTheLockIsSuperseded(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := key("s1", core.CategoryStudyPlan, "math")

	kl, early := s.locks.enter(k)
	_, late := s.locks.enter(k)
	require.Less(t, early, late)

	// the later arrival lands first
	_, _, err := s.tryPut(ctx, kl, late, core.MemoryRecord{Key: k, Payload: map[string]any{"v": "late"}}, 5, "d-late", putConfig{})
	require.NoError(t, err)

	_, _, err = s.tryPut(ctx, kl, early, core.MemoryRecord{Key: k, Payload: map[string]any{"v": "early"}}, 5, "d-early", putConfig{})
	require.ErrorIs(t, err, core.ErrSuperseded)

	got, err := s.Get(ctx, "s1", core.CategoryStudyPlan, "math")
	require.NoError(t, err)
	assert.Equal(t, "late", got.Payload["v"])

	s.locks.leave(k, kl)
	s.locks.leave(k, kl)
	assert.Empty(t, s.locks.locks)
}

func TestInMemoryStore_ConcurrentWritesRespectBudget(t *testing.T) {
	ctx := context.Background()
	s := New(func(o *Options) {
		o.Budget = 200
		o.Keep = 1
	})

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				k := key("s1", core.CategoryCommunityEvent, fmt.Sprintf("w%d-%d", w, i%5))
				_, err := s.Put(ctx, record(k, 10, float64(i%3)/3))
				if err != nil {
					// contention may starve a writer of freed space
					assert.Equal(t, core.KindCapacity, core.Classify(err), err)
				}
			}
		}()
	}
	wg.Wait()

	stats := s.Stats()
	assert.LessOrEqual(t, stats.Size, 200)
	sum := 0
	for r := range s.Query(ctx, "s1", "", 0, core.OrderRecency).All() {
		sum += r.Size
	}
	assert.Equal(t, stats.Size, sum, "running size counter matches the records")
}

func TestInMemoryStore_JournalFailureRejectsWrite(t *testing.T) {
	ctx := context.Background()
	journal := newMemJournal()
	journal.failOn = fmt.Errorf("disk full")
	s := New(func(o *Options) { o.Journal = journal })

	_, err := s.Put(ctx, record(key("s1", core.CategoryStudyPlan, "k"), 1, 1))
	require.Error(t, err)
	assert.Zero(t, s.Stats().Records)
}

func TestInMemoryStore_CompactionEmitsEvent(t *testing.T) {
	ctx := core.WithRun(context.Background(), core.RunInfo{RunID: "run-7"})
	var events []core.Event
	s := New(func(o *Options) {
		o.Budget = 50
		o.Keep = 0
		o.Observer = core.ObserverFunc(func(_ context.Context, ev core.Event) { events = append(events, ev) })
	})
	for i := range 6 {
		_, err := s.Put(ctx, record(key("s1", core.CategoryStudyPlan, fmt.Sprintf("k%d", i)), 10, 0.5))
		require.NoError(t, err)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, core.EventCompactionTriggered, events[0].Kind)
	assert.Equal(t, "run-7", events[0].RunID)
	assert.Contains(t, events[0].Attrs, "evicted")
}

func names(records []core.MemoryRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key.Name
	}
	return out
}
