package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/tool"
)

// Names and topics of the study planning agent.
const (
	StudyAgentName = "study"
	// TopicPlan carries {"subjects", "weekly_hours"} for other agents of the run.
	TopicPlan = "plan"
	// ScratchStudyFocus holds the subject the session currently focuses on.
	ScratchStudyFocus = "study_focus"
)

const studyInstruction = `You are a supportive study coach. Build realistic plans that respect the student's energy and wellbeing. Use short sentences and concrete steps.`

const studyPrompt = `Create a personalized study plan.
Subjects: {{default "general studies" .subjects}}
Available hours per week: {{.available_hours}}
Deadline: {{default "none" .deadline}}
Learning style: {{.learning_style}}
Pace: {{.pace}}
{{if .request}}Request: {{.request}}{{end}}

Include a weekly schedule, study techniques for the learning style, break reminders and a way to track progress.`

const studyFallback = "Start with the most challenging subject first, take regular breaks, and track your progress daily."

// StudyAgent builds a study plan, optionally looking up free slots, and slows
// the pace when an earlier agent of the run reported a low mood.
//
// Reads: input, subjects (list), available_hours, deadline, learning_style.
// Writes: study-plan, keyed by the sorted subject list.
type StudyAgent struct {
	BaseAgent
}

var _ core.Agent = (*StudyAgent)(nil)

// NewStudyAgent constructs the agent with the clarity validator attached.
func NewStudyAgent(r Reasoner, optFns ...func(o *Options)) *StudyAgent {
	defaults := func(o *Options) {
		o.Instruction = NewInstructionFromText(studyInstruction)
		o.Prompt = NewInstructionFromText(studyPrompt)
		o.Fallback = studyFallback
		o.Validators = append(o.Validators, ClarityValidator())
	}
	spec := core.AgentSpec{
		Name:       StudyAgentName,
		Capability: core.CapabilityStudyPlanning,
		Reads:      []string{"input", "subjects", "available_hours", "deadline", "learning_style"},
		Writes:     []core.Category{core.CategoryStudyPlan},
	}
	return &StudyAgent{BaseAgent: NewBaseAgent(spec, r, append([]func(o *Options){defaults}, optFns...)...)}
}

// Run implements core.Agent.
func (a *StudyAgent) Run(ctx context.Context, sess *core.Session, view core.MemoryView, ch core.Channel) (core.Output, core.Delta, error) {
	in := CurrentInput(sess)
	subjects := in.Strings("subjects")
	hours := in.Int("available_hours", 10)
	style := in.String("learning_style", "visual")

	pace := "steady"
	for msg := range ch.Subscribe(TopicMood) {
		if score, ok := toInt(msg.Payload["mood_score"]); ok && score <= MoodNegative {
			pace = "gentle"
		}
	}

	extra := map[string]any{}
	if view != nil {
		if prev, err := view.Get(ctx, core.CategoryStudyPlan, planName(subjects)); err == nil {
			extra["previous plan"] = prev.Payload["plan"]
		}
	}

	data := map[string]any{
		"subjects":        strings.Join(subjects, ", "),
		"available_hours": hours,
		"deadline":        in.String("deadline", ""),
		"learning_style":  style,
		"pace":            pace,
		"request":         in.Text,
	}

	out := map[string]any{
		"weekly_hours":   hours,
		"subjects_count": len(subjects),
		"pace":           pace,
	}

	toolDegraded := false
	if len(subjects) > 0 && a.HasTool(tool.SchedulingToolName) {
		res := a.CallTool(ctx, tool.SchedulingToolName, tool.OpFindSlots, map[string]any{"subject": subjects[0], "days": 7})
		if res.Degraded() {
			toolDegraded = true
		} else {
			out["slots"] = res.Value
			extra["free slots"] = fmt.Sprint(res.Value)
		}
	}

	reply, err := a.Reason(ctx, in, data, extra)
	if err != nil {
		return core.Output{}, core.Delta{}, err
	}
	reply.Degraded = reply.Degraded || toolDegraded
	out["clarity"] = ValidateClarity(reply.Text).Map()

	var delta core.Delta
	delta.Set(core.Write{
		Category: core.CategoryStudyPlan,
		Name:     planName(subjects),
		Payload: map[string]any{
			"subjects":       subjects,
			"weekly_hours":   hours,
			"deadline":       in.String("deadline", ""),
			"learning_style": style,
			"pace":           pace,
			"plan":           reply.Text,
		},
		Importance: 0.6,
	})
	if len(subjects) > 0 {
		delta.SetScratch(ScratchStudyFocus, subjects[0])
	}

	if err := ch.Publish(TopicPlan, map[string]any{"subjects": subjects, "weekly_hours": hours, "pace": pace}); err != nil {
		return core.Output{}, core.Delta{}, fmt.Errorf("%s: publish plan: %w", a.Name(), err)
	}

	return a.Output(reply, out), delta, nil
}

// planName is the natural key of a study plan: the lowercased, sorted subject
// list, so re-planning the same subjects revises the earlier plan.
func planName(subjects []string) string {
	if len(subjects) == 0 {
		return "general"
	}
	names := make([]string, len(subjects))
	for i, s := range subjects {
		names[i] = strings.ToLower(s)
	}
	slices.Sort(names)
	return strings.Join(slices.Compact(names), "+")
}
