package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/model"
)

type eventLog struct {
	mu     sync.Mutex
	events []core.Event
}

func (l *eventLog) Observe(_ context.Context, ev core.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []core.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Event(nil), l.events...)
}

func fastOptions(obs core.Observer) func(o *Options) {
	return func(o *Options) {
		o.Timeout = 20 * time.Millisecond
		o.MaxRetries = 2
		o.InitialBackoff = 5 * time.Millisecond
		o.MaxBackoff = time.Second
		o.Observer = obs
	}
}

func TestGateway_TimesOutAfterThreeAttempts(t *testing.T) {
	slow := model.NewMockModel("slow").Script(
		model.Step{Text: "late", Delay: time.Second},
		model.Step{Text: "late", Delay: time.Second},
		model.Step{Text: "late", Delay: time.Second},
	)
	obs := &eventLog{}
	g := New(slow, fastOptions(obs))

	_, err := g.Infer(context.Background(), Request{Request: model.Request{Prompt: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInferenceTimeout)
	assert.Equal(t, core.KindTransient, core.Classify(err))

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Len(t, slow.Calls(), 3)

	events := obs.all()
	require.Len(t, events, 2)
	first := events[0].Attrs["backoff"].(time.Duration)
	second := events[1].Attrs["backoff"].(time.Duration)
	assert.Equal(t, core.EventRetryAttempted, events[0].Kind)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Equal(t, 2, events[1].Attempt)
	assert.Greater(t, second, first)
}

func TestGateway_RecoversFromTransientFailure(t *testing.T) {
	m := model.NewMockModel("flaky").Script(
		model.Step{Err: errors.New("503 overloaded")},
		model.Step{Text: "I hear you."},
	)
	g := New(m, fastOptions(nil))

	res, err := g.Infer(context.Background(), Request{Request: model.Request{Prompt: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "I hear you.", res.Text)
	assert.Equal(t, 2, res.Attempts)
}

func TestGateway_InvalidOutputIsNotRetried(t *testing.T) {
	m := model.NewMockModel("m").Script(model.Step{Text: "you are hopeless"}, model.Step{Text: "never reached"})
	g := New(m, fastOptions(nil))

	noDespair := ValidatorFunc(func(text string) []string {
		if text == "you are hopeless" {
			return []string{"negative tone"}
		}
		return nil
	})

	_, err := g.Infer(context.Background(), Request{
		Request:    model.Request{Prompt: "hi"},
		Validators: []Validator{NonEmpty, noDespair},
	})
	var invalid *core.InvalidOutputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "you are hopeless", invalid.Raw)
	assert.Equal(t, []string{"negative tone"}, invalid.Reasons)
	assert.Equal(t, core.KindValidation, core.Classify(err))
	assert.Len(t, m.Calls(), 1)
}

func TestGateway_FatalStopsRetries(t *testing.T) {
	m := model.NewMockModel("m").Script(model.Step{Err: core.Fatal("auth", errors.New("bad key"))})
	g := New(m, fastOptions(nil))

	_, err := g.Infer(context.Background(), Request{Request: model.Request{Prompt: "hi"}})
	assert.True(t, core.IsFatal(err))
	assert.Len(t, m.Calls(), 1)
}

func TestGateway_ParentCancellationStopsRetries(t *testing.T) {
	m := model.NewMockModel("m").Script(model.Step{Delay: time.Second}, model.Step{Delay: time.Second})
	g := New(m, func(o *Options) { o.Timeout = time.Minute })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := g.Infer(ctx, Request{Request: model.Request{Prompt: "hi"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, m.Calls(), 1)
}

// stubbornModel ignores its context and answers only after delay.
type stubbornModel struct{ delay time.Duration }

func (m stubbornModel) Infer(_ context.Context, _ model.Request) (model.Response, error) {
	time.Sleep(m.delay)
	return model.Response{Text: "late"}, nil
}

func (m stubbornModel) Info() model.Info { return model.Info{Name: "stubborn"} }

func TestGateway_TimeoutHoldsAgainstModelIgnoringContext(t *testing.T) {
	g := New(stubbornModel{delay: 400 * time.Millisecond}, fastOptions(nil))

	start := time.Now()
	_, err := g.Infer(context.Background(), Request{Request: model.Request{Prompt: "hi"}})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, core.ErrInferenceTimeout)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

type panickyModel struct{}

func (panickyModel) Infer(context.Context, model.Request) (model.Response, error) {
	panic("boom")
}

func (panickyModel) Info() model.Info { return model.Info{Name: "panicky"} }

func TestGateway_ModelPanicIsAnAttemptFailure(t *testing.T) {
	g := New(panickyModel{}, fastOptions(nil))

	_, err := g.Infer(context.Background(), Request{Request: model.Request{Prompt: "hi"}})
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.False(t, exhausted.TimedOut)
	assert.Contains(t, err.Error(), "panicked")
}

func TestGateway_RequestTimeoutOverride(t *testing.T) {
	m := model.NewMockModel("m").Script(model.Step{Text: "ok", Delay: 30 * time.Millisecond})
	g := New(m, func(o *Options) {
		o.Timeout = 5 * time.Millisecond
		o.MaxRetries = 0
	})

	res, err := g.Infer(context.Background(), Request{Request: model.Request{Prompt: "hi"}, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
}

func TestGateway_ConsumesRunBudget(t *testing.T) {
	m := model.NewMockModel("m")
	g := New(m)
	ctx := core.WithRun(context.Background(), core.RunInfo{RunID: "r1", Budget: core.NewInferenceBudget(1)})

	_, err := g.Infer(ctx, Request{Request: model.Request{Prompt: "a"}})
	require.NoError(t, err)
	_, err = g.Infer(ctx, Request{Request: model.Request{Prompt: "b"}})
	assert.ErrorIs(t, err, core.ErrBudgetExhausted)
}

func TestGateway_Backoff(t *testing.T) {
	g := New(model.NewMockModel("m"), func(o *Options) {
		o.InitialBackoff = 100 * time.Millisecond
		o.Multiplier = 2
		o.MaxBackoff = 300 * time.Millisecond
	})
	assert.Equal(t, 100*time.Millisecond, g.backoff(1))
	assert.Equal(t, 200*time.Millisecond, g.backoff(2))
	assert.Equal(t, 300*time.Millisecond, g.backoff(3))
}

func TestSchema_Validate(t *testing.T) {
	s := MustCompileSchema(`{
		"type": "object",
		"required": ["subject", "sessions"],
		"properties": {"subject": {"type": "string"}, "sessions": {"type": "integer", "minimum": 1}}
	}`)

	assert.Empty(t, s.Validate(`{"subject": "math", "sessions": 3}`))
	assert.Empty(t, s.Validate("```json\n{\"subject\": \"math\", \"sessions\": 3}\n```"))
	assert.NotEmpty(t, s.Validate(`{"subject": "math"}`))
	assert.NotEmpty(t, s.Validate(`not json`))

	_, err := CompileSchema([]byte(`{"type": 12}`))
	assert.Error(t, err)
}
