package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Model = (*MockModel)(nil)

func TestMockModel_ScriptThenCanned(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockModel("test").Script(Step{Text: "first"}, Step{Err: boom})
	m.AddResponse("hello", "canned")

	ctx := context.Background()
	resp, err := m.Infer(ctx, Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = m.Infer(ctx, Request{Prompt: "hello"})
	assert.ErrorIs(t, err, boom)

	resp, err = m.Infer(ctx, Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "canned", resp.Text)

	resp, err = m.Infer(ctx, Request{Prompt: "other"})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", resp.Text)
	assert.Len(t, m.Calls(), 4)
}

func TestMockModel_DelayHonorsContext(t *testing.T) {
	m := NewMockModel("slow").Script(Step{Text: "late", Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Infer(ctx, Request{Prompt: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUserText(t *testing.T) {
	got := UserText(Request{Prompt: "Plan my week", Context: map[string]any{"subject": "math", "hours": 4}})
	assert.Equal(t, "Plan my week\n\nContext:\n- hours: 4\n- subject: math", got)
	assert.Equal(t, "plain", UserText(Request{Prompt: "plain"}))
}
