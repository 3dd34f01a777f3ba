package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/memory"
)

// Interface compliance (compile-time assertions)
var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ memory.PinSource  = (*InMemoryStore)(nil)
)

func TestInMemoryStore_CreateGetSave(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.Get(ctx, "s1")
	require.ErrorIs(t, err, core.ErrSessionNotFound)

	sess, err := s.Create(ctx, "s1")
	require.NoError(t, err)
	sess.SetScratch("focus", "math")
	sess.AppendTurn(core.Turn{Input: "help me plan"})

	// unsaved changes are not visible
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, got.TurnCount())

	require.NoError(t, s.Save(ctx, sess))
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount())
	v, ok := got.GetScratch("focus")
	assert.True(t, ok)
	assert.Equal(t, "math", v)
}

func TestInMemoryStore_IdleExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewInMemoryStore(func(o *Options) {
		o.IdleTimeout = time.Minute
		o.Clock = func() time.Time { return now }
	})

	a, _ := s.Create(ctx, "active")
	a.SetScratch("pinned-key", true)
	require.NoError(t, s.Save(ctx, a))
	b, _ := s.Create(ctx, "idle")
	b.SetScratch("stale-key", true)
	require.NoError(t, s.Save(ctx, b))

	now = now.Add(45 * time.Second)
	require.NoError(t, s.Save(ctx, a)) // activity refreshes the timer
	now = now.Add(30 * time.Second)

	keys, err := s.OpenScratchKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"pinned-key": {}}, keys)

	_, err = s.Get(ctx, "idle")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = s.Get(ctx, "active")
	assert.NoError(t, err)

	now = now.Add(2 * time.Minute)
	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, s.Len())
}

func TestInMemoryStore_OpenScratchKeysIncludesReferencedNames(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	sess, err := s.Create(ctx, "s1")
	require.NoError(t, err)
	sess.SetScratch("last_emotion", "anxious")
	sess.SetScratch("study_focus", []string{"math", "physics"})
	sess.SetScratch("turns", 3)
	require.NoError(t, s.Save(ctx, sess))

	keys, err := s.OpenScratchKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"last_emotion": {}, "anxious": {},
		"study_focus": {}, "math": {}, "physics": {},
		"turns": {},
	}, keys)
}

func TestInMemoryStore_ReturnsClones(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	sess, _ := s.Create(ctx, "s1")
	require.NoError(t, s.Save(ctx, sess))

	got, _ := s.Get(ctx, "s1")
	got.SetScratch("mutated", true)

	again, _ := s.Get(ctx, "s1")
	assert.Empty(t, again.ScratchKeys())
}
