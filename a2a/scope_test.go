package a2a

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_HoldsMessagesUntilCommit(t *testing.T) {
	b := NewBus("run-1")
	_, err := b.Publish("emotional", "mood", map[string]any{"score": 3})
	require.NoError(t, err)

	outer := b.Scope()
	inner := outer.Scope()

	w := b.Outbox("study", func(o *OutboxOptions) { o.Scope = inner })
	require.NoError(t, w.Publish("plan", map[string]any{"rev": 1}))
	_, err = w.Commit()
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len(), "scoped messages stay off the bus")
	assert.Equal(t, 1, inner.Len())

	r := b.Outbox("social", func(o *OutboxOptions) { o.Scope = inner })
	var got []string
	for m := range r.Subscribe("plan") {
		got = append(got, m.Sender)
	}
	assert.Equal(t, []string{"study"}, got)

	outside := b.Outbox("community")
	assert.Empty(t, collectTopics(outside, "plan"))

	_, err = inner.Commit()
	require.NoError(t, err)
	assert.Equal(t, 1, outer.Len())
	assert.Equal(t, 1, b.Len())

	msgs, err := outer.Commit()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(2), msgs[0].Seq)
	assert.Equal(t, []string{"plan"}, collectTopics(outside, "plan"))

	_, err = outer.Commit()
	assert.ErrorIs(t, err, ErrScopeClosed)
}

func TestScope_DiscardDropsMessages(t *testing.T) {
	b := NewBus("run-1")
	s := b.Scope()

	w := b.Outbox("emotional", func(o *OutboxOptions) { o.Scope = s })
	require.NoError(t, w.Publish("mood", nil))
	_, err := w.Commit()
	require.NoError(t, err)

	s.Discard()
	s.Discard()
	assert.Zero(t, s.Len())
	assert.Zero(t, b.Len())

	late := b.Outbox("study", func(o *OutboxOptions) { o.Scope = s })
	require.NoError(t, late.Publish("plan", nil))
	_, err = late.Commit()
	assert.ErrorIs(t, err, ErrScopeClosed)
}

func collectTopics(o *Outbox, topic string) []string {
	var topics []string
	for m := range o.Subscribe(topic) {
		topics = append(topics, m.Topic)
	}
	return topics
}
