package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/saathi/a2a"
	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/gateway"
	"github.com/hupe1980/saathi/internal/testutil"
	"github.com/hupe1980/saathi/model"
	"github.com/hupe1980/saathi/tool"
)

// MockReasoner for testing agents without a gateway
type MockReasoner struct {
	mock.Mock
}

func (m *MockReasoner) Infer(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Result), args.Error(1)
}

// fakeView serves records of one session from a slice.
type fakeView struct {
	records []core.MemoryRecord
}

func (v fakeView) Get(_ context.Context, category core.Category, name string) (core.MemoryRecord, error) {
	for _, r := range v.records {
		if r.Key.Category == category && r.Key.Name == name {
			return r, nil
		}
	}
	return core.MemoryRecord{}, core.ErrNotFound
}

func (v fakeView) Query(_ context.Context, category core.Category, limit int, order core.Order) *core.Cursor {
	var out []core.MemoryRecord
	for _, r := range v.records {
		if r.Key.Category == category {
			out = append(out, r)
		}
	}
	core.SortRecords(out, order)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return core.SliceCursor(out)
}

func TestEmotionalAgent_SameTurnWritesSamePayload(t *testing.T) {
	r := new(MockReasoner)
	r.On("Infer", mock.Anything, mock.Anything).Return(gateway.Result{Text: "I understand. I am here for you."}, nil)
	a := NewEmotionalAgent(r)

	var payloads []map[string]any
	for _, runID := range []string{"run-1", "run-2"} {
		sess := testutil.NewSessionBuilder("s1").Turn(runID, "cannot sleep", map[string]any{"emotions": []any{"anxious"}}).Build()
		_, delta, err := a.Run(context.Background(), sess, fakeView{}, a2a.NewBus(runID).Outbox(EmotionalAgentName))
		require.NoError(t, err)
		w, ok := delta.Lookup(core.CategoryEmotionalPattern, "anxious")
		require.True(t, ok)
		payloads = append(payloads, w.Payload)
	}
	assert.Equal(t, payloads[0], payloads[1], "identical turns rewrite an identical record")
}

func newTurnSession(input string, fields map[string]any) *core.Session {
	return testutil.NewSessionBuilder("s1").Turn("run-1", input, fields).Build()
}

func gatewayFor(m model.Model) *gateway.Gateway {
	return gateway.New(m, func(o *gateway.Options) {
		o.Timeout = 50 * time.Millisecond
		o.MaxRetries = 1
		o.InitialBackoff = time.Millisecond
		o.MaxBackoff = time.Millisecond
	})
}

func TestEmotionalAgent_Run(t *testing.T) {
	r := new(MockReasoner)
	r.On("Infer", mock.Anything, mock.MatchedBy(func(req gateway.Request) bool {
		return assert.Contains(t, req.Prompt, "Journal entry: exams are close") &&
			assert.Contains(t, req.Prompt, "Emotions: Anxious, tired") &&
			assert.Equal(t, "sad (mood 3)", req.Context["recent moods"]) &&
			assert.Len(t, req.Validators, 1)
	})).Return(gateway.Result{Text: "I understand. That sounds heavy, and I care about how you feel."}, nil)

	bus := a2a.NewBus("run-1")
	ob := bus.Outbox(EmotionalAgentName)
	view := fakeView{records: []core.MemoryRecord{{
		Key:     core.RecordKey{SessionID: "s1", Category: core.CategoryEmotionalPattern, Name: "sad"},
		Payload: map[string]any{"emotion": "sad", "mood_score": 3},
	}}}

	a := NewEmotionalAgent(r)
	out, delta, err := a.Run(context.Background(), newTurnSession("exams are close", map[string]any{"emotions": []any{"Anxious", "tired"}}), view, ob)
	require.NoError(t, err)
	r.AssertExpectations(t)

	assert.Equal(t, EmotionalAgentName, out.Agent)
	assert.False(t, out.Degraded)
	assert.Empty(t, out.Issues)
	assert.Equal(t, "anxious", out.Data["primary_emotion"])
	assert.Equal(t, MoodNegative, out.Data["mood_score"])

	w, ok := delta.Lookup(core.CategoryEmotionalPattern, "anxious")
	require.True(t, ok)
	assert.InDelta(t, 0.7, w.Importance, 1e-9)
	assert.NotContains(t, w.Payload, "run_id")
	assert.Equal(t, map[string]any{ScratchLastEmotion: "anxious"}, delta.Scratch())

	assert.Equal(t, 1, ob.Pending())
	_, err = ob.Commit()
	require.NoError(t, err)
	var moods []core.Message
	for m := range bus.Subscribe(StudyAgentName, TopicMood) {
		moods = append(moods, m)
	}
	require.Len(t, moods, 1)
	assert.Equal(t, MoodNegative, moods[0].Payload["mood_score"])
}

func TestEmotionalAgent_DegradesOnTransientFailure(t *testing.T) {
	m := model.NewMockModel("flaky").Script(
		model.Step{Err: errors.New("provider unavailable")},
		model.Step{Err: errors.New("provider unavailable")},
	)
	a := NewEmotionalAgent(gatewayFor(m))

	out, delta, err := a.Run(context.Background(), newTurnSession("long day", nil), fakeView{}, a2a.NewBus("run-1").Outbox(EmotionalAgentName))
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, emotionalFallback, out.Text)
	assert.Equal(t, "reflective", out.Data["primary_emotion"])

	// the mood is still recorded, it does not depend on the model
	_, ok := delta.Lookup(core.CategoryEmotionalPattern, "reflective")
	assert.True(t, ok)
}

func TestEmotionalAgent_InvalidOutputReturnsRawWithIssues(t *testing.T) {
	m := model.NewMockModel("harsh")
	m.Script(model.Step{Text: "You are not alone in this."})
	a := NewEmotionalAgent(gatewayFor(m))

	out, _, err := a.Run(context.Background(), newTurnSession("nobody gets me", nil), fakeView{}, a2a.NewBus("run-1").Outbox(EmotionalAgentName))
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Equal(t, "You are not alone in this.", out.Text)
	assert.Equal(t, []string{ToneNegativeLanguage}, out.Issues)
	assert.False(t, ToneOK(out))
}

func TestEmotionalAgent_CancellationFails(t *testing.T) {
	r := new(MockReasoner)
	ctx, cancel := context.WithCancel(context.Background())
	r.On("Infer", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(gateway.Result{}, context.Canceled)

	_, _, err := NewEmotionalAgent(r).Run(ctx, newTurnSession("hi", nil), fakeView{}, a2a.NewBus("run-1").Outbox(EmotionalAgentName))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmotionalAgent_FatalFails(t *testing.T) {
	r := new(MockReasoner)
	r.On("Infer", mock.Anything, mock.Anything).Return(gateway.Result{}, core.Fatal("model", errors.New("misconfigured")))

	_, _, err := NewEmotionalAgent(r).Run(context.Background(), newTurnSession("hi", nil), fakeView{}, a2a.NewBus("run-1").Outbox(EmotionalAgentName))
	assert.True(t, core.IsFatal(err))
}

func TestEmotionalAgent_MediaToolFailureDegrades(t *testing.T) {
	media := tool.NewMediaTool(func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("quota exceeded")
	})
	reg, err := tool.NewRegistry(media)
	require.NoError(t, err)

	m := model.NewMockModel("kind")
	m.Script(model.Step{Text: "I hear you. I understand and I care."})
	a := NewEmotionalAgent(gatewayFor(m), func(o *Options) { o.Tools = reg })

	out, _, err := a.Run(context.Background(), newTurnSession("hi", map[string]any{"emotions": "happy"}), fakeView{}, a2a.NewBus("run-1").Outbox(EmotionalAgentName))
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, "I hear you. I understand and I care.", out.Text)
	assert.NotContains(t, out.Data, "media")
}

func TestEmotionalAgent_IsRerunnable(t *testing.T) {
	m := model.NewMockModel("steady")
	a := NewEmotionalAgent(gatewayFor(m))
	sess := newTurnSession("same input", map[string]any{"emotions": "content"})

	_, d1, err := a.Run(context.Background(), sess, fakeView{}, a2a.NewBus("run-1").Outbox(EmotionalAgentName))
	require.NoError(t, err)
	_, d2, err := a.Run(context.Background(), sess, fakeView{}, a2a.NewBus("run-1").Outbox(EmotionalAgentName))
	require.NoError(t, err)

	assert.Equal(t, d1.Writes(), d2.Writes())
	assert.Equal(t, 1, sess.TurnCount(), "agents must not mutate the session")
}

func TestStudyAgent_Run(t *testing.T) {
	sched := tool.NewSchedulingTool(tool.Static([]any{"Mon 18:00", "Wed 18:00"}))
	reg, err := tool.NewRegistry(sched)
	require.NoError(t, err)

	m := model.NewMockModel("coach")
	m.Script(model.Step{Text: "Plan math on Monday. Review physics on Wednesday. Take short breaks."})

	bus := a2a.NewBus("run-1")
	_, err = bus.Publish(EmotionalAgentName, TopicMood, map[string]any{"emotion": "stressed", "mood_score": 3})
	require.NoError(t, err)

	a := NewStudyAgent(gatewayFor(m), func(o *Options) { o.Tools = reg })
	sess := newTurnSession("help me prepare", map[string]any{
		"subjects":        []string{"Physics", "Math"},
		"available_hours": 12.0,
		"deadline":        "2025-06-01",
	})
	ob := bus.Outbox(StudyAgentName)
	out, delta, err := a.Run(context.Background(), sess, fakeView{}, ob)
	require.NoError(t, err)

	assert.False(t, out.Degraded)
	assert.Equal(t, "gentle", out.Data["pace"])
	assert.Equal(t, 12, out.Data["weekly_hours"])
	assert.Equal(t, 2, out.Data["subjects_count"])
	assert.Equal(t, []any{"Mon 18:00", "Wed 18:00"}, out.Data["slots"])

	w, ok := delta.Lookup(core.CategoryStudyPlan, "math+physics")
	require.True(t, ok)
	assert.Equal(t, "gentle", w.Payload["pace"])
	assert.Equal(t, map[string]any{ScratchStudyFocus: "Physics"}, delta.Scratch())
	assert.Equal(t, 1, ob.Pending())

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Pace: gentle")
	assert.Contains(t, calls[0].Prompt, "Learning style: visual")
}

func TestStudyAgent_LongSentencesAreIssues(t *testing.T) {
	long := "You could study every single evening after dinner while also reviewing all of the previous chapters and summarizing them into careful notes that you read again every weekend"
	m := model.NewMockModel("verbose")
	m.Script(model.Step{Text: long})

	out, _, err := NewStudyAgent(gatewayFor(m)).Run(context.Background(), newTurnSession("plan", nil), fakeView{}, a2a.NewBus("r").Outbox(StudyAgentName))
	require.NoError(t, err)
	assert.Equal(t, long, out.Text)
	require.Len(t, out.Issues, 1)
	assert.Contains(t, out.Issues[0], "average sentence length")
	assert.False(t, ClarityOK(out))
}

func TestCommunityAgent_Run(t *testing.T) {
	geo := tool.NewGeoTool(func(_ context.Context, args map[string]any) (any, error) {
		return []any{fmt.Sprintf("library near %s", args["location"])}, nil
	})
	reg, err := tool.NewRegistry(geo)
	require.NoError(t, err)

	m := model.NewMockModel("organizer")
	m.Script(model.Step{Text: "Visit the library. Start a weekly reading circle."})

	ob := a2a.NewBus("run-1").Outbox(CommunityAgentName)
	out, delta, err := NewCommunityAgent(gatewayFor(m), func(o *Options) { o.Tools = reg }).
		Run(context.Background(), newTurnSession("", map[string]any{"location": "Pune, Kothrud", "needs": "youth mentoring"}), nil, ob)
	require.NoError(t, err)

	assert.Equal(t, []any{"library near Pune, Kothrud"}, out.Data["resources"])
	w, ok := delta.Lookup(core.CategoryCommunityEvent, "pune-kothrud")
	require.True(t, ok)
	assert.Equal(t, "youth mentoring", w.Payload["needs"])

	msgs, err := ob.Commit()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Visit the library.", msgs[0].Payload["summary"])
}

func TestSocialAgent_EnhancesToneAndFormats(t *testing.T) {
	m := model.NewMockModel("storyteller")
	m.Script(model.Step{Text: "I think I was hopeless once. You should know it gets better."})

	bus := a2a.NewBus("run-1")
	_, err := bus.Publish(CommunityAgentName, TopicCommunity, map[string]any{"summary": "reading circle"})
	require.NoError(t, err)

	out, delta, err := NewSocialAgent(gatewayFor(m)).Run(context.Background(),
		newTurnSession("I moved cities alone", map[string]any{"title": "New City"}), nil, bus.Outbox(SocialAgentName))
	require.NoError(t, err)

	assert.Equal(t, "I feel I was hopeless once. You might consider know it gets better.", out.Text)
	assert.Equal(t, []string{ToneNegativeLanguage}, out.Issues)

	posts, ok := out.Data["posts"].(map[string]string)
	require.True(t, ok)
	assert.Len(t, posts, 3)
	assert.Contains(t, posts["twitter"], "#")

	_, ok = delta.Lookup(core.CategorySocialPostDraft, "new-city")
	assert.True(t, ok)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, model.UserText(calls[0]), "community: community:")
}

func TestSocialAgent_Publishes(t *testing.T) {
	pub := &tool.Outbox{}
	reg, err := tool.NewRegistry(tool.NewSocialTool(pub))
	require.NoError(t, err)

	m := model.NewMockModel("storyteller")
	m.Script(model.Step{Text: "Growth takes time and support helps."})

	out, _, err := NewSocialAgent(gatewayFor(m), func(o *Options) { o.Tools = reg }).Run(context.Background(),
		newTurnSession("I finished my degree", map[string]any{"publish": true}), nil, a2a.NewBus("r").Outbox(SocialAgentName))
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Len(t, pub.Posts(), 3)
	assert.Len(t, out.Data["receipts"], 3)
}

func TestBaseAgent_NilReasonerDegrades(t *testing.T) {
	a := NewCommunityAgent(nil)
	out, _, err := a.Run(context.Background(), newTurnSession("", nil), nil, a2a.NewBus("r").Outbox(CommunityAgentName))
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, communityFallback, out.Text)
}

func TestBaseAgent_SpecIsCopied(t *testing.T) {
	a := NewStudyAgent(nil)
	spec := a.Spec()
	spec.Writes[0] = core.CategorySocialPostDraft
	assert.Equal(t, []core.Category{core.CategoryStudyPlan}, a.Spec().Writes)
	require.NoError(t, a.Spec().Validate())
}

func TestBaseAgent_BadTemplateIsFatal(t *testing.T) {
	a := NewStudyAgent(new(MockReasoner), func(o *Options) {
		o.Prompt = NewInstructionFromText("{{.subjects")
	})
	_, _, err := a.Run(context.Background(), newTurnSession("plan", nil), fakeView{}, a2a.NewBus("r").Outbox(StudyAgentName))
	assert.True(t, core.IsFatal(err))
}
