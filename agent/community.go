package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/tool"
)

// Names and topics of the community agent.
const (
	CommunityAgentName = "community"
	// TopicCommunity carries {"location", "needs", "summary"}.
	TopicCommunity = "community"
)

const communityInstruction = `You are a community organizer who helps people connect with local resources and start small, inclusive initiatives. Prefer plain words and short sentences.`

const communityPrompt = `Location: {{default "unspecified" .location}}
Community needs: {{default "general wellbeing" .needs}}
{{if .request}}Request: {{.request}}{{end}}

Suggest local resources, one small project to start with, and how to involve neighbours.`

const communityFallback = "Start by listening to community members, identify shared concerns, and build small collaborative projects that address immediate needs."

// CommunityAgent analyses community needs for a location, consulting the geo
// tool for nearby places when one is configured.
//
// Reads: input, location, needs.
// Writes: community-event, keyed by the location slug.
type CommunityAgent struct {
	BaseAgent
}

var _ core.Agent = (*CommunityAgent)(nil)

// NewCommunityAgent constructs the agent with the clarity validator attached.
func NewCommunityAgent(r Reasoner, optFns ...func(o *Options)) *CommunityAgent {
	defaults := func(o *Options) {
		o.Instruction = NewInstructionFromText(communityInstruction)
		o.Prompt = NewInstructionFromText(communityPrompt)
		o.Fallback = communityFallback
		o.Validators = append(o.Validators, ClarityValidator())
	}
	spec := core.AgentSpec{
		Name:       CommunityAgentName,
		Capability: core.CapabilityCommunity,
		Reads:      []string{"input", "location", "needs"},
		Writes:     []core.Category{core.CategoryCommunityEvent},
	}
	return &CommunityAgent{BaseAgent: NewBaseAgent(spec, r, append([]func(o *Options){defaults}, optFns...)...)}
}

// Run implements core.Agent.
func (a *CommunityAgent) Run(ctx context.Context, sess *core.Session, _ core.MemoryView, ch core.Channel) (core.Output, core.Delta, error) {
	in := CurrentInput(sess)
	location := in.String("location", "")
	needs := in.String("needs", "")

	data := map[string]any{"location": location, "needs": needs, "request": in.Text}
	out := map[string]any{"location": location}
	extra := map[string]any{}

	toolDegraded := false
	if location != "" && a.HasTool(tool.GeoToolName) {
		res := a.CallTool(ctx, tool.GeoToolName, tool.OpNearby, map[string]any{"location": location, "interest": needs})
		if res.Degraded() {
			toolDegraded = true
		} else {
			out["resources"] = res.Value
			extra["nearby resources"] = fmt.Sprint(res.Value)
		}
	}

	reply, err := a.Reason(ctx, in, data, extra)
	if err != nil {
		return core.Output{}, core.Delta{}, err
	}
	reply.Degraded = reply.Degraded || toolDegraded

	if !reply.Degraded && len(reply.Issues) > 0 {
		reply.Text = ImproveClarity(reply.Text)
		reply.Issues = ValidateClarity(reply.Text).Issues
	}
	out["clarity"] = ValidateClarity(reply.Text).Map()

	var delta core.Delta
	delta.Set(core.Write{
		Category: core.CategoryCommunityEvent,
		Name:     slug(location),
		Payload: map[string]any{
			"location":  location,
			"needs":     needs,
			"analysis":  reply.Text,
			"resources": out["resources"],
		},
		Importance: 0.5,
	})

	if err := ch.Publish(TopicCommunity, map[string]any{"location": location, "needs": needs, "summary": firstSentence(reply.Text)}); err != nil {
		return core.Output{}, core.Delta{}, fmt.Errorf("%s: publish community: %w", a.Name(), err)
	}

	return a.Output(reply, out), delta, nil
}

// slug lowercases s and collapses every run of non alphanumerics into "-".
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "local"
	}
	return out
}

func firstSentence(text string) string {
	if i := strings.Index(text, ". "); i >= 0 {
		return text[:i+1]
	}
	return text
}
