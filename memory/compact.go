package memory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/hupe1980/saathi/core"
)

// CompactionReport describes one compaction pass.
type CompactionReport struct {
	Evicted    []core.RecordKey
	SizeBefore int
	SizeAfter  int
	Target     int
	Duration   time.Duration
}

// Compact runs a compaction pass that brings the bank down to TargetRatio·B.
// It is a no-op when the bank is already at or below the target.
func (s *InMemoryStore) Compact(ctx context.Context) (CompactionReport, error) {
	return s.compact(ctx, 0, core.RecordKey{})
}

// compact evicts until size+reserve fits the target. protect is the key an
// in-flight Put is about to write; it is never evicted from under the writer.
func (s *InMemoryStore) compact(ctx context.Context, reserve int, protect core.RecordKey) (CompactionReport, error) {
	s.phase.Lock()
	defer s.phase.Unlock()

	start := s.opts.Clock()

	pins := map[string]struct{}{}
	if s.opts.Pins != nil {
		p, err := s.opts.Pins.OpenScratchKeys(ctx)
		if err != nil {
			return CompactionReport{}, fmt.Errorf("memory: resolving pinned keys: %w", err)
		}
		pins = p
	}

	s.mu.RLock()
	records := make([]core.MemoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, *rec)
	}
	sizeBefore := s.size
	s.mu.RUnlock()

	target := s.target(reserve)

	p := planCompaction(records, planInput{
		size:          sizeBefore,
		goal:          target,
		keep:          s.opts.Keep,
		maxEvictRatio: s.opts.MaxEvictRatio,
		halfLife:      s.opts.HalfLife,
		now:           start,
		pins:          pins,
		protect:       protect,
	})

	report := CompactionReport{SizeBefore: sizeBefore, SizeAfter: sizeBefore, Target: target}

	ev := core.NewEvent(ctx, core.EventCompactionTriggered)
	ev.Attrs = map[string]any{"size_before": sizeBefore, "target": target, "reserve": reserve, "records": len(records)}

	if p.err != nil {
		report.Duration = s.opts.Clock().Sub(start)
		ev.Duration = report.Duration
		ev.Err = p.err.Error()
		s.opts.Observer.Observe(ctx, ev)
		s.logCompaction(0, sizeBefore, sizeBefore, report.Duration, p.err)
		return report, p.err
	}

	if len(p.evict) > 0 && s.opts.Journal != nil {
		if err := s.opts.Journal.Delete(ctx, p.evict...); err != nil {
			return report, fmt.Errorf("memory: journal evict: %w", err)
		}
	}

	s.mu.Lock()
	for _, key := range p.evict {
		if rec, ok := s.records[key]; ok {
			s.size -= rec.Size
			delete(s.records, key)
		}
	}
	report.SizeAfter = s.size
	s.mu.Unlock()

	report.Evicted = p.evict
	report.Duration = s.opts.Clock().Sub(start)

	if len(p.evict) > 0 {
		s.compactions.Add(1)
		s.evictions.Add(int64(len(p.evict)))
	}

	ev.Duration = report.Duration
	ev.Attrs["evicted"] = len(p.evict)
	ev.Attrs["size_after"] = report.SizeAfter
	s.opts.Observer.Observe(ctx, ev)
	s.logCompaction(len(p.evict), sizeBefore, report.SizeAfter, report.Duration, nil)

	return report, nil
}

// target returns the size the bank must reach so that reserve more units fit
// under TargetRatio·B. A reservation larger than the target itself only needs
// to fit under B.
func (s *InMemoryStore) target(reserve int) int {
	goal := int(math.Floor(float64(s.opts.Budget) * s.opts.TargetRatio))
	if reserve <= 0 {
		return goal
	}
	if reserve > goal {
		return s.opts.Budget - reserve
	}
	return goal - reserve
}

type compactionLogger interface {
	LogCompaction(evicted, sizeBefore, sizeAfter int, dur time.Duration, err error)
}

func (s *InMemoryStore) logCompaction(evicted, before, after int, dur time.Duration, err error) {
	if l, ok := s.opts.Logger.(compactionLogger); ok {
		l.LogCompaction(evicted, before, after, dur, err)
		return
	}
	if err != nil {
		s.opts.Logger.Warn("memory compaction failed", "size_before", before, "error", err)
		return
	}
	s.opts.Logger.Info("memory compaction completed", "evicted", evicted, "size_before", before, "size_after", after)
}

type planInput struct {
	size          int
	goal          int
	keep          int
	maxEvictRatio float64
	halfLife      time.Duration
	now           time.Time
	pins          map[string]struct{}
	protect       core.RecordKey
}

type plan struct {
	evict []core.RecordKey
	err   error
}

// score is importance × 0.5^(age/halfLife), age measured from last access.
func score(rec core.MemoryRecord, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return rec.Importance
	}
	age := max(now.Sub(rec.AccessedAt), 0)
	return rec.Importance * math.Exp2(-float64(age)/float64(halfLife))
}

// planCompaction decides which records to evict. It is pure: the same input
// always yields the same plan, and a plan that cannot reach the goal evicts
// nothing.
func planCompaction(records []core.MemoryRecord, in planInput) plan {
	if in.size <= in.goal {
		return plan{}
	}

	// Top-K by importance are retained unconditionally.
	byImportance := slices.Clone(records)
	core.SortRecords(byImportance, core.OrderImportance)
	kept := make(map[core.RecordKey]struct{}, in.keep)
	for i := 0; i < len(byImportance) && i < in.keep; i++ {
		kept[byImportance[i].Key] = struct{}{}
	}

	type candidate struct {
		rec   core.MemoryRecord
		score float64
	}

	candidates := make([]candidate, 0, len(records))
	for _, rec := range records {
		if _, ok := kept[rec.Key]; ok {
			continue
		}
		if _, ok := in.pins[rec.Key.Name]; ok {
			continue
		}
		if rec.Key == in.protect {
			continue
		}
		candidates = append(candidates, candidate{rec: rec, score: score(rec, in.now, in.halfLife)})
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.score, b.score); c != 0 {
			return c
		}
		if c := a.rec.AccessedAt.Compare(b.rec.AccessedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.rec.Key.String(), b.rec.Key.String())
	})

	maxEvict := int(math.Floor(float64(len(records)) * in.maxEvictRatio))

	size := in.size
	evict := make([]core.RecordKey, 0)
	for _, c := range candidates {
		if size <= in.goal || len(evict) >= maxEvict {
			break
		}
		evict = append(evict, c.rec.Key)
		size -= c.rec.Size
	}

	if size > in.goal {
		return plan{err: fmt.Errorf("%w: bank size %d cannot reach %d (evictable %d of %d records, pass limit %d)",
			core.ErrCapacityExceeded, in.size, in.goal, len(candidates), len(records), maxEvict)}
	}

	return plan{evict: evict}
}
