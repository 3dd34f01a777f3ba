package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/tool"
)

// Names and topics of the emotional support agent.
const (
	EmotionalAgentName = "emotional"
	// TopicMood carries {"emotion", "mood_score"} for other agents of the run.
	TopicMood = "mood"
	// ScratchLastEmotion holds the most recent primary emotion of the session.
	ScratchLastEmotion = "last_emotion"
)

const emotionalInstruction = `You are a compassionate emotional support companion. You listen without judgment, validate feelings and offer gentle, practical self-care ideas. Never diagnose. Keep answers under 150 words.`

const emotionalPrompt = `Journal entry: {{.input}}
Emotions: {{default "not specified" .emotions}}

Respond with:
1. Validation of these feelings
2. Gentle insights about the patterns you notice
3. One or two self-care suggestions
4. A supportive closing`

const emotionalFallback = "I'm here to listen and support you. Your feelings are valid and important. Take a deep breath and remember to be kind to yourself today."

// EmotionalAgent reflects on a journal entry, scores the mood and records an
// emotional pattern for the session.
//
// Reads: input, emotions (list), save_journal (bool).
// Writes: emotional-pattern, keyed by the primary emotion.
type EmotionalAgent struct {
	BaseAgent
}

var _ core.Agent = (*EmotionalAgent)(nil)

// NewEmotionalAgent constructs the agent. The tone validator is always
// attached; optFns may add validators or tools (media, file).
func NewEmotionalAgent(r Reasoner, optFns ...func(o *Options)) *EmotionalAgent {
	defaults := func(o *Options) {
		o.Instruction = NewInstructionFromText(emotionalInstruction)
		o.Prompt = NewInstructionFromText(emotionalPrompt)
		o.Fallback = emotionalFallback
		o.Validators = append(o.Validators, ToneValidator())
	}
	spec := core.AgentSpec{
		Name:       EmotionalAgentName,
		Capability: core.CapabilityEmotionalSupport,
		Reads:      []string{"input", "emotions", "save_journal"},
		Writes:     []core.Category{core.CategoryEmotionalPattern},
	}
	return &EmotionalAgent{BaseAgent: NewBaseAgent(spec, r, append([]func(o *Options){defaults}, optFns...)...)}
}

// Run implements core.Agent.
func (a *EmotionalAgent) Run(ctx context.Context, sess *core.Session, view core.MemoryView, ch core.Channel) (core.Output, core.Delta, error) {
	in := CurrentInput(sess)
	emotions := in.Strings("emotions")
	primary := "reflective"
	if len(emotions) > 0 {
		primary = strings.ToLower(emotions[0])
	}
	mood := MoodScore(primary)

	extra := map[string]any{}
	if recent := recentMoods(ctx, view, 3); len(recent) > 0 {
		extra["recent moods"] = strings.Join(recent, "; ")
	}

	reply, err := a.Reason(ctx, in, map[string]any{"emotions": strings.Join(emotions, ", ")}, extra)
	if err != nil {
		return core.Output{}, core.Delta{}, err
	}

	data := map[string]any{
		"primary_emotion": primary,
		"mood_score":      mood,
		"tone":            ValidateTone(reply.Text).Map(),
	}

	if a.HasTool(tool.MediaToolName) {
		res := a.CallTool(ctx, tool.MediaToolName, tool.OpSearch, map[string]any{"query": "calming " + primary, "max_results": 3})
		if res.Degraded() {
			reply.Degraded = true
		} else {
			data["media"] = res.Value
		}
	}

	if in.Bool("save_journal") && a.HasTool(tool.FileToolName) {
		res := a.CallTool(ctx, tool.FileToolName, tool.OpSave, map[string]any{
			"name": "journal",
			"data": map[string]any{"entry": in.Text, "emotions": emotions, "mood_score": mood},
		})
		if res.Degraded() {
			reply.Degraded = true
		} else {
			data["journal"] = res.Value
		}
	}

	var delta core.Delta
	delta.Set(core.Write{
		Category: core.CategoryEmotionalPattern,
		Name:     primary,
		Payload: map[string]any{
			"emotion":    primary,
			"emotions":   emotions,
			"mood_score": mood,
			"insight":    reply.Text,
		},
		Importance: moodImportance(mood),
	})
	delta.SetScratch(ScratchLastEmotion, primary)

	if err := ch.Publish(TopicMood, map[string]any{"emotion": primary, "mood_score": mood}); err != nil {
		return core.Output{}, core.Delta{}, fmt.Errorf("%s: publish mood: %w", a.Name(), err)
	}

	return a.Output(reply, data), delta, nil
}

// recentMoods summarizes the latest emotional patterns of the session.
func recentMoods(ctx context.Context, view core.MemoryView, limit int) []string {
	if view == nil {
		return nil
	}
	cur := view.Query(ctx, core.CategoryEmotionalPattern, limit, core.OrderRecency)
	defer cur.Close()

	var out []string
	for rec := range cur.All() {
		out = append(out, fmt.Sprintf("%v (mood %v)", rec.Payload["emotion"], rec.Payload["mood_score"]))
	}
	return out
}
