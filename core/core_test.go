package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"timeout", fmt.Errorf("attempt 3: %w", ErrInferenceTimeout), KindTransient},
		{"plain", errors.New("connection reset"), KindTransient},
		{"invalid output", &InvalidOutputError{Raw: "x", Reasons: []string{"negative tone"}}, KindValidation},
		{"too large", fmt.Errorf("put: %w", ErrRecordTooLarge), KindCapacity},
		{"capacity", ErrCapacityExceeded, KindCapacity},
		{"budget", ErrBudgetExhausted, KindCapacity},
		{"unregistered", fmt.Errorf("leaf: %w", ErrUnregisteredAgent), KindFatal},
		{"collision", ErrSequenceCollision, KindFatal},
		{"wrapped fatal", Fatal("agent panic", errors.New("boom")), KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestInvalidOutputError_KeepsRawText(t *testing.T) {
	var err error = &InvalidOutputError{Raw: "you are worthless", Reasons: []string{"negative language"}}

	assert.ErrorIs(t, err, ErrInvalidOutput)

	var ioe *InvalidOutputError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "you are worthless", ioe.Raw)
	assert.Contains(t, err.Error(), "negative language")
}

func TestDelta_SetReplacesSameKeyInPlace(t *testing.T) {
	var d Delta
	d.Set(Write{Category: CategoryStudyPlan, Name: "math", Payload: map[string]any{"v": 1}})
	d.Set(Write{Category: CategoryStudyPlan, Name: "art", Payload: map[string]any{"v": 1}})
	d.Set(Write{Category: CategoryStudyPlan, Name: "math", Payload: map[string]any{"v": 2}})

	writes := d.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "math", writes[0].Name)
	assert.Equal(t, 2, writes[0].Payload["v"])
	assert.Equal(t, "art", writes[1].Name)
}

func TestDelta_MergeSupersedes(t *testing.T) {
	var first, second Delta
	first.Set(Write{Category: CategoryEmotionalPattern, Name: "mood", Payload: map[string]any{"draft": 1}})
	first.SetScratch("focus", "mood")
	second.Set(Write{Category: CategoryEmotionalPattern, Name: "mood", Payload: map[string]any{"draft": 2}})
	second.Set(Write{Category: CategoryEmotionalPattern, Name: "trigger", Payload: map[string]any{}})

	first.Merge(second)

	assert.Equal(t, 2, first.Len())
	w, ok := first.Lookup(CategoryEmotionalPattern, "mood")
	require.True(t, ok)
	assert.Equal(t, 2, w.Payload["draft"])
	assert.Equal(t, map[string]any{"focus": "mood"}, first.Scratch())
}

func TestDelta_SetCopiesPayload(t *testing.T) {
	payload := map[string]any{"v": 1}
	var d Delta
	d.Set(Write{Category: CategoryStudyPlan, Name: "k", Payload: payload})
	payload["v"] = 99

	w, _ := d.Lookup(CategoryStudyPlan, "k")
	assert.Equal(t, 1, w.Payload["v"])
}

func TestRunState_Transitions(t *testing.T) {
	s := NewRunState()
	assert.Equal(t, StatusPending, s.Status())

	require.ErrorIs(t, s.Finish(StatusSucceeded), ErrIllegalTransition)
	require.NoError(t, s.Start())
	require.ErrorIs(t, s.Finish(StatusRunning), ErrIllegalTransition)
	require.NoError(t, s.Finish(StatusExhausted))

	// terminal states are final
	assert.ErrorIs(t, s.Finish(StatusSucceeded), ErrIllegalTransition)
	assert.ErrorIs(t, s.Start(), ErrIllegalTransition)
	assert.Equal(t, StatusExhausted, s.Status())
}

func TestCursor_IsNotRestartable(t *testing.T) {
	c := SliceCursor([]MemoryRecord{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	first, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, "a", first.ID)

	rest := c.Collect()
	assert.Len(t, rest, 2)

	_, ok = c.Next()
	assert.False(t, ok)
	assert.Empty(t, c.Collect())
}

func TestSortRecords(t *testing.T) {
	now := time.Now()
	records := []MemoryRecord{
		{ID: "old-important", Importance: 0.9, AccessedAt: now.Add(-time.Hour), Key: RecordKey{Name: "a"}},
		{ID: "new-trivial", Importance: 0.1, AccessedAt: now, Key: RecordKey{Name: "b"}},
		{ID: "mid", Importance: 0.5, AccessedAt: now.Add(-time.Minute), Key: RecordKey{Name: "c"}},
	}

	SortRecords(records, OrderRecency)
	assert.Equal(t, []string{"new-trivial", "mid", "old-important"}, ids(records))

	SortRecords(records, OrderImportance)
	assert.Equal(t, []string{"old-important", "mid", "new-trivial"}, ids(records))
}

func TestSession_CloneIsIndependent(t *testing.T) {
	s := NewSession("s1")
	s.SetScratch("plan", map[string]any{"subject": "math"})
	s.AppendTurn(Turn{Input: "hi"})

	c := s.Clone()
	c.SetScratch("extra", true)
	c.Scratch["plan"].(map[string]any)["subject"] = "art"

	v, _ := s.GetScratch("plan")
	assert.Equal(t, "math", v.(map[string]any)["subject"])
	assert.Equal(t, []string{"plan"}, s.ScratchKeys())
	assert.Equal(t, 1, c.TurnCount())
}

func TestSession_ApplyScratchNilDeletes(t *testing.T) {
	s := NewSession("s1")
	s.ApplyScratch(map[string]any{"a": 1, "b": 2})
	s.ApplyScratch(map[string]any{"a": nil})
	assert.Equal(t, []string{"b"}, s.ScratchKeys())
}

func TestSession_ScratchRefs(t *testing.T) {
	s := NewSession("s1")
	s.ApplyScratch(map[string]any{
		"last_emotion": "anxious",
		"subjects":     []any{"math", 3},
		"draft":        true,
		"empty":        "",
	})
	assert.Equal(t, []string{"anxious", "draft", "empty", "last_emotion", "math", "subjects"}, s.ScratchRefs())
}

func TestInferenceBudget(t *testing.T) {
	b := NewInferenceBudget(2)
	require.NoError(t, b.Acquire())
	require.NoError(t, b.Acquire())
	assert.ErrorIs(t, b.Acquire(), ErrBudgetExhausted)
	assert.Equal(t, 0, b.Remaining())

	unlimited := NewInferenceBudget(0)
	for range 10 {
		require.NoError(t, unlimited.Acquire())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}

func TestNewEvent_CarriesRunMetadata(t *testing.T) {
	ctx := WithRun(context.Background(), RunInfo{RunID: "run-1"})
	ctx = WithNodePath(ctx, ChildPath("root", "leaf"))

	ev := NewEvent(ctx, EventNodeEntered)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, "root/leaf", ev.NodePath)
	assert.False(t, ev.Time.IsZero())
}

func ids(records []MemoryRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
