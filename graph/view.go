package graph

import (
	"context"
	"time"

	"github.com/hupe1980/saathi/core"
)

var _ core.MemoryView = (*View)(nil)

// View is an immutable memory view for one session: a snapshot of committed
// records plus the writes staged earlier in the run. Extending a view with
// With returns a new view; the receiver is unchanged, so a parallel node can
// hand the same entry snapshot to every branch.
type View struct {
	sessionID string
	base      map[core.RecordKey]core.MemoryRecord
	overlay   core.Delta
	now       time.Time
}

// NewView builds a view over the committed records of sessionID. Records of
// other sessions are ignored.
func NewView(sessionID string, records []core.MemoryRecord) *View {
	base := make(map[core.RecordKey]core.MemoryRecord, len(records))
	for _, rec := range records {
		if rec.Key.SessionID == sessionID {
			base[rec.Key] = rec.Clone()
		}
	}
	return &View{sessionID: sessionID, base: base, now: time.Now().UTC()}
}

// With returns a view that additionally sees d. Later writes win per key.
func (v *View) With(d core.Delta) *View {
	if d.IsEmpty() {
		return v
	}
	overlay := v.overlay.Clone()
	overlay.Merge(d)
	return &View{sessionID: v.sessionID, base: v.base, overlay: overlay, now: time.Now().UTC()}
}

// Staged returns the writes staged on top of the snapshot.
func (v *View) Staged() core.Delta { return v.overlay.Clone() }

// Get implements core.MemoryView.
func (v *View) Get(ctx context.Context, category core.Category, name string) (core.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return core.MemoryRecord{}, err
	}
	key := core.RecordKey{SessionID: v.sessionID, Category: category, Name: name}
	if w, ok := v.overlay.Lookup(category, name); ok {
		return v.staged(key, w), nil
	}
	if rec, ok := v.base[key]; ok {
		return rec.Clone(), nil
	}
	return core.MemoryRecord{}, core.ErrNotFound
}

// Query implements core.MemoryView.
func (v *View) Query(ctx context.Context, category core.Category, limit int, order core.Order) *core.Cursor {
	if ctx.Err() != nil {
		return core.SliceCursor(nil)
	}
	var out []core.MemoryRecord
	for key, rec := range v.base {
		if key.Category != category {
			continue
		}
		if _, shadowed := v.overlay.Lookup(category, key.Name); shadowed {
			continue
		}
		out = append(out, rec.Clone())
	}
	for _, w := range v.overlay.Writes() {
		if w.Category == category {
			out = append(out, v.staged(core.RecordKey{SessionID: v.sessionID, Category: category, Name: w.Name}, w))
		}
	}
	core.SortRecords(out, order)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return core.SliceCursor(out)
}

// staged renders a staged write as the record it will become.
func (v *View) staged(key core.RecordKey, w core.Write) core.MemoryRecord {
	rec := core.MemoryRecord{
		Key:        key,
		Payload:    core.CloneMap(w.Payload),
		Importance: w.Importance,
		Size:       w.Size,
		CreatedAt:  v.now,
		AccessedAt: v.now,
	}
	if prev, ok := v.base[key]; ok {
		rec.ID = prev.ID
		rec.Version = prev.Version + 1
		rec.CreatedAt = prev.CreatedAt
	}
	return rec
}
