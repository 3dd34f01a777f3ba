package core

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"
)

// Category partitions long-term memory by the kind of knowledge it holds.
type Category string

const (
	CategoryEmotionalPattern Category = "emotional-pattern"
	CategoryStudyPlan        Category = "study-plan"
	CategoryCommunityEvent   Category = "community-event"
	CategorySocialPostDraft  Category = "social-post-draft"
)

// Categories lists every known category.
func Categories() []Category {
	return []Category{CategoryEmotionalPattern, CategoryStudyPlan, CategoryCommunityEvent, CategorySocialPostDraft}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories(), c)
}

// RecordKey addresses a memory record by owning session, category and natural
// key.
type RecordKey struct {
	SessionID string   `json:"session_id" cbor:"session_id"`
	Category  Category `json:"category" cbor:"category"`
	Name      string   `json:"name" cbor:"name"`
}

func (k RecordKey) String() string {
	return k.SessionID + "/" + string(k.Category) + "/" + k.Name
}

// MemoryRecord is one unit of long-term memory.
type MemoryRecord struct {
	ID         string         `json:"id" cbor:"id"`
	Key        RecordKey      `json:"key" cbor:"key"`
	Payload    map[string]any `json:"payload" cbor:"payload"`
	Importance float64        `json:"importance" cbor:"importance"`
	Size       int            `json:"size" cbor:"size"`
	Version    uint64         `json:"version" cbor:"version"`
	Digest     string         `json:"digest,omitempty" cbor:"digest,omitempty"`
	CreatedAt  time.Time      `json:"created_at" cbor:"created_at"`
	AccessedAt time.Time      `json:"accessed_at" cbor:"accessed_at"`
}

// Clone returns a deep copy of the record.
func (r MemoryRecord) Clone() MemoryRecord {
	r.Payload = CloneMap(r.Payload)
	return r
}

// Order selects the ranking of a memory query.
type Order int

const (
	// OrderRecency ranks by last access, newest first.
	OrderRecency Order = iota
	// OrderImportance ranks by importance, highest first.
	OrderImportance
)

func (o Order) String() string {
	if o == OrderImportance {
		return "importance"
	}
	return "recency"
}

// SortRecords sorts records most-relevant first for the given order. Ties are
// broken by recency and finally by key so results are deterministic.
func SortRecords(records []MemoryRecord, order Order) {
	slices.SortStableFunc(records, func(a, b MemoryRecord) int {
		if order == OrderImportance {
			if c := cmp.Compare(b.Importance, a.Importance); c != 0 {
				return c
			}
		}
		if c := b.AccessedAt.Compare(a.AccessedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.String(), b.Key.String())
	})
}

// MemoryView is the read-only memory surface handed to agents. Lookups are
// scoped to the session the agent runs in.
type MemoryView interface {
	Get(ctx context.Context, category Category, name string) (MemoryRecord, error)
	Query(ctx context.Context, category Category, limit int, order Order) *Cursor
}

// Cursor is a lazy, finite, non-restartable sequence of memory records. Once
// exhausted or closed it yields nothing.
type Cursor struct {
	mu   sync.Mutex
	next func() (MemoryRecord, bool)
	done bool
}

// NewCursor wraps a pull function. next is called at most until it first
// reports false.
func NewCursor(next func() (MemoryRecord, bool)) *Cursor {
	return &Cursor{next: next}
}

// SliceCursor yields the given records in order.
func SliceCursor(records []MemoryRecord) *Cursor {
	i := 0
	return NewCursor(func() (MemoryRecord, bool) {
		if i >= len(records) {
			return MemoryRecord{}, false
		}
		r := records[i]
		i++
		return r, true
	})
}

// Next returns the next record, or false once the cursor is exhausted.
func (c *Cursor) Next() (MemoryRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done || c.next == nil {
		return MemoryRecord{}, false
	}
	r, ok := c.next()
	if !ok {
		c.done = true
		c.next = nil
	}
	return r, ok
}

// All adapts the cursor to a range-over-func sequence. Breaking out of the loop
// leaves the remaining records unconsumed.
func (c *Cursor) All() iter.Seq[MemoryRecord] {
	return func(yield func(MemoryRecord) bool) {
		for {
			r, ok := c.Next()
			if !ok || !yield(r) {
				return
			}
		}
	}
}

// Collect drains the cursor into a slice.
func (c *Cursor) Collect() []MemoryRecord {
	return slices.Collect(c.All())
}

// Close releases the cursor. Further calls to Next report false.
func (c *Cursor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
	c.next = nil
}
