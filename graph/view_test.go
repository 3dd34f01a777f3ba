package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/saathi/core"
)

func record(session, name string, importance float64, at time.Time) core.MemoryRecord {
	return core.MemoryRecord{
		ID:         "id-" + name,
		Key:        core.RecordKey{SessionID: session, Category: core.CategoryStudyPlan, Name: name},
		Payload:    map[string]any{"name": name},
		Importance: importance,
		Version:    1,
		CreatedAt:  at,
		AccessedAt: at,
	}
}

func TestView_OverlayShadowsSnapshot(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	base := NewView("s1", []core.MemoryRecord{
		record("s1", "math", 0.9, t0),
		record("s1", "art", 0.2, t0.Add(time.Minute)),
		record("other", "secret", 1, t0),
	})

	_, err := base.Get(ctx, core.CategoryStudyPlan, "secret")
	assert.ErrorIs(t, err, core.ErrNotFound, "records of other sessions are invisible")

	var d core.Delta
	d.Set(core.Write{Category: core.CategoryStudyPlan, Name: "math", Payload: map[string]any{"name": "math v2"}, Importance: 0.1})
	d.Set(core.Write{Category: core.CategoryStudyPlan, Name: "music", Payload: map[string]any{"name": "music"}, Importance: 0.5})
	staged := base.With(d)

	rec, err := staged.Get(ctx, core.CategoryStudyPlan, "math")
	require.NoError(t, err)
	assert.Equal(t, "math v2", rec.Payload["name"])
	assert.Equal(t, "id-math", rec.ID)
	assert.Equal(t, uint64(2), rec.Version)

	rec, err = base.Get(ctx, core.CategoryStudyPlan, "math")
	require.NoError(t, err)
	assert.Equal(t, "math", rec.Payload["name"], "With leaves the receiver unchanged")

	names := func(v *View) []string {
		var out []string
		for r := range v.Query(ctx, core.CategoryStudyPlan, 0, core.OrderImportance).All() {
			out = append(out, r.Key.Name)
		}
		return out
	}
	assert.Equal(t, []string{"math", "art"}, names(base))
	assert.Equal(t, []string{"music", "art", "math"}, names(staged))

	top := staged.Query(ctx, core.CategoryStudyPlan, 1, core.OrderImportance).Collect()
	require.Len(t, top, 1)
	assert.Equal(t, "music", top[0].Key.Name)
	assert.Equal(t, 2, staged.Staged().Len())
}

func TestView_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := NewView("s1", []core.MemoryRecord{record("s1", "math", 1, time.Now())})

	_, err := v.Get(ctx, core.CategoryStudyPlan, "math")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, v.Query(ctx, core.CategoryStudyPlan, 0, core.OrderRecency).Collect())
}
