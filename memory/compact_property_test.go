package memory

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hupe1980/saathi/core"
)

type bankSpec struct {
	Sizes       []int
	Importances []float64
	AgesMinutes []int
	PinEvery    int
	Keep        int
}

func genBankSpec() gopter.Gen {
	return gen.IntRange(1, 40).FlatMap(func(v any) gopter.Gen {
		n := v.(int)
		return gopter.CombineGens(
			gen.SliceOfN(n, gen.IntRange(1, 30)),
			gen.SliceOfN(n, gen.Float64Range(0, 1)),
			gen.SliceOfN(n, gen.IntRange(0, 10_000)),
			gen.IntRange(0, 5),
			gen.IntRange(0, 6),
		).Map(func(vals []any) bankSpec {
			return bankSpec{
				Sizes:       vals[0].([]int),
				Importances: vals[1].([]float64),
				AgesMinutes: vals[2].([]int),
				PinEvery:    vals[3].(int),
				Keep:        vals[4].(int),
			}
		})
	}, reflect.TypeOf(bankSpec{}))
}

func (b bankSpec) build(now time.Time) ([]core.MemoryRecord, map[string]struct{}, int) {
	records := make([]core.MemoryRecord, len(b.Sizes))
	pins := map[string]struct{}{}
	total := 0
	for i := range b.Sizes {
		name := fmt.Sprintf("k%03d", i)
		records[i] = core.MemoryRecord{
			Key:        core.RecordKey{SessionID: "s", Category: core.CategoryEmotionalPattern, Name: name},
			Size:       b.Sizes[i],
			Importance: b.Importances[i],
			AccessedAt: now.Add(-time.Duration(b.AgesMinutes[i]) * time.Minute),
		}
		if b.PinEvery > 0 && i%b.PinEvery == 0 {
			pins[name] = struct{}{}
		}
		total += b.Sizes[i]
	}
	return records, pins, total
}

func TestPlanCompaction_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	properties.Property("a plan either reaches the goal within its floors or evicts nothing", prop.ForAll(
		func(spec bankSpec) bool {
			records, pins, total := spec.build(now)
			goal := total * 8 / 10
			p := planCompaction(records, planInput{
				size: total, goal: goal, keep: spec.Keep, maxEvictRatio: 0.5,
				halfLife: time.Hour, now: now, pins: pins,
			})
			if p.err != nil {
				return len(p.evict) == 0
			}

			if len(p.evict) > len(records)/2 {
				return false
			}

			kept := map[core.RecordKey]bool{}
			sorted := append([]core.MemoryRecord(nil), records...)
			core.SortRecords(sorted, core.OrderImportance)
			for i := 0; i < len(sorted) && i < spec.Keep; i++ {
				kept[sorted[i].Key] = true
			}

			sizeOf := map[core.RecordKey]int{}
			for _, r := range records {
				sizeOf[r.Key] = r.Size
			}
			remaining := total
			for _, k := range p.evict {
				if _, pinned := pins[k.Name]; pinned || kept[k] {
					return false
				}
				remaining -= sizeOf[k]
			}
			return remaining <= goal
		},
		genBankSpec(),
	))

	properties.Property("planning is deterministic", prop.ForAll(
		func(spec bankSpec) bool {
			records, pins, total := spec.build(now)
			in := planInput{size: total, goal: total / 2, keep: spec.Keep, maxEvictRatio: 0.5, halfLife: time.Hour, now: now, pins: pins}
			a := planCompaction(records, in)
			reversed := make([]core.MemoryRecord, len(records))
			for i, r := range records {
				reversed[len(records)-1-i] = r
			}
			b := planCompaction(reversed, in)
			return fmt.Sprint(a.evict) == fmt.Sprint(b.evict) && (a.err == nil) == (b.err == nil)
		},
		genBankSpec(),
	))

	properties.TestingRun(t)
}
