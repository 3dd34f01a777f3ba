package agent

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/tool"
)

// SocialAgentName is the registry name of the social agent.
const SocialAgentName = "social"

const socialInstruction = `You help people share their journey in a way that is authentic, hopeful and emotionally intelligent. Avoid telling readers what they should do.`

const socialPrompt = `Turn this experience into a short, {{default "hopeful" .tone}} story for social media.
Experience: {{.input}}
{{if .transformation}}What changed: {{.transformation}}
{{end}}{{if .lesson}}Lesson learned: {{.lesson}}
{{end}}Keep it under 120 words.`

const socialFallback = "Every journey begins with a single step. Your experiences matter, your growth inspires, and your story can light the way for others."

// SocialAgent drafts a story and per-platform posts from the user's
// experience. Messages published earlier in the run (mood, plan, community)
// are folded into the prompt context. Posts are only published when the
// turn asks for it and a social tool is configured.
//
// Reads: input, transformation, lesson, tone, title, publish (bool).
// Writes: social-post-draft, keyed by the title.
type SocialAgent struct {
	BaseAgent
}

var _ core.Agent = (*SocialAgent)(nil)

// NewSocialAgent constructs the agent with the tone validator attached.
func NewSocialAgent(r Reasoner, optFns ...func(o *Options)) *SocialAgent {
	defaults := func(o *Options) {
		o.Instruction = NewInstructionFromText(socialInstruction)
		o.Prompt = NewInstructionFromText(socialPrompt)
		o.Fallback = socialFallback
		o.Validators = append(o.Validators, ToneValidator())
	}
	spec := core.AgentSpec{
		Name:       SocialAgentName,
		Capability: core.CapabilitySocial,
		Reads:      []string{"input", "transformation", "lesson", "tone", "title", "publish"},
		Writes:     []core.Category{core.CategorySocialPostDraft},
	}
	return &SocialAgent{BaseAgent: NewBaseAgent(spec, r, append([]func(o *Options){defaults}, optFns...)...)}
}

// Run implements core.Agent.
func (a *SocialAgent) Run(ctx context.Context, sess *core.Session, _ core.MemoryView, ch core.Channel) (core.Output, core.Delta, error) {
	in := CurrentInput(sess)

	extra := map[string]any{}
	for _, topic := range []string{TopicMood, TopicPlan, TopicCommunity} {
		var notes []string
		for msg := range ch.Subscribe(topic) {
			notes = append(notes, fmt.Sprintf("%s: %v", msg.Sender, msg.Payload))
		}
		if len(notes) > 0 {
			extra[topic] = strings.Join(notes, "; ")
		}
	}

	reply, err := a.Reason(ctx, in, map[string]any{"tone": in.String("tone", "hopeful")}, extra)
	if err != nil {
		return core.Output{}, core.Delta{}, err
	}
	if !reply.Degraded && len(reply.Issues) > 0 {
		reply.Text = EnhanceTone(reply.Text)
		reply.Issues = ToneValidator().Validate(reply.Text)
	}

	posts := tool.FormatAll(reply.Text)
	out := map[string]any{
		"posts": posts,
		"tone":  ValidateTone(reply.Text).Map(),
	}

	if in.Bool("publish") && len(reply.Issues) == 0 && !reply.Degraded {
		receipts := map[string]any{}
		for _, platform := range slices.Sorted(maps.Keys(posts)) {
			res := a.CallTool(ctx, tool.SocialToolName, tool.OpPublish, map[string]any{"platform": platform, "text": posts[platform]})
			if res.Degraded() {
				reply.Degraded = true
				continue
			}
			receipts[platform] = res.Value
		}
		out["receipts"] = receipts
	}

	postPayload := make(map[string]any, len(posts))
	for k, v := range posts {
		postPayload[k] = v
	}

	var delta core.Delta
	delta.Set(core.Write{
		Category: core.CategorySocialPostDraft,
		Name:     slug(in.String("title", "story")),
		Payload: map[string]any{
			"story": reply.Text,
			"posts": postPayload,
			"tone":  in.String("tone", "hopeful"),
		},
		Importance: 0.4,
	})

	return a.Output(reply, out), delta, nil
}
