// Package saathi wires the agents, the composition graphs and the stores of
// the wellbeing companion into a ready to use Orchestrator. Most applications:
//  1. Create a Saathi via New() (or Build from a config.Config)
//  2. Optionally replace the default graphs with Register or LoadGraphs
//  3. Call HandleTurn once per user turn
//
// All defaults are in-memory and answer through a mock model, which is safe
// for local development and tests. Production deployments supply a real
// model, durable stores and a structured logger.
package saathi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/saathi/agent"
	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/evaluation"
	"github.com/hupe1980/saathi/gateway"
	"github.com/hupe1980/saathi/graph"
	"github.com/hupe1980/saathi/logging"
	"github.com/hupe1980/saathi/model"
	"github.com/hupe1980/saathi/observe"
	"github.com/hupe1980/saathi/orchestrator"
	"github.com/hupe1980/saathi/tool"
)

// DefaultLoopIterations bounds the revision loops of the default graphs.
const DefaultLoopIterations = 3

// Options configures a Saathi instance.
type Options struct {
	// Model answers reasoning calls. Default a mock model.
	Model model.Model
	// Gateway adjusts timeouts, retries and rate limiting of reasoning calls.
	Gateway func(o *gateway.Options)
	// Orchestrator adjusts run limits and the session and memory stores.
	Orchestrator func(o *orchestrator.Options)
	// Tools are registered on top of the defaults. A tool named like a
	// default replaces it.
	Tools []tool.Tool
	// Publisher receives social posts. Default an in-process tool.Outbox.
	Publisher tool.Publisher
	// ToolTimeout bounds every tool call. Default tool.DefaultTimeout.
	ToolTimeout time.Duration
	// LoopIterations bounds the loops of the default graphs. Default 3.
	LoopIterations int
	// Evaluator backs the grade_* stop predicates. Default evaluation.New().
	Evaluator *evaluation.Evaluator
	Observer  core.Observer
	Logger    logging.Logger
}

// Saathi is the façade over the orchestrator and its collaborators.
type Saathi struct {
	orch      *orchestrator.Orchestrator
	gateway   *gateway.Gateway
	agents    *graph.Registry
	preds     graph.Predicates
	tracker   *evaluation.Tracker
	publisher tool.Publisher
	logger    logging.Logger
	closers   []func() error
}

// New creates a Saathi with the four agents registered and the default
// graph bound to every capability.
func New(optFns ...func(o *Options)) (*Saathi, error) {
	opts := Options{
		ToolTimeout:    tool.DefaultTimeout,
		LoopIterations: DefaultLoopIterations,
		Observer:       core.NopObserver{},
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Model == nil {
		opts.Model = model.NewMockModel("saathi-mock")
	}
	if opts.Publisher == nil {
		opts.Publisher = &tool.Outbox{}
	}
	if opts.Evaluator == nil {
		opts.Evaluator = evaluation.New(func(o *evaluation.Options) { o.Logger = logging.ForComponent(opts.Logger, "evaluation") })
	}

	tracker := evaluation.NewTracker()
	observer := observe.Combine(opts.Observer, tracker.Observer())

	gw := gateway.New(opts.Model, func(o *gateway.Options) {
		o.Observer = observer
		o.Logger = logging.ForComponent(opts.Logger, "gateway")
		if opts.Gateway != nil {
			opts.Gateway(o)
		}
	})

	tools, err := toolRegistry(opts.Publisher, opts.Tools)
	if err != nil {
		return nil, err
	}
	agentOpts := func(o *agent.Options) {
		o.Tools = tools
		o.ToolTimeout = opts.ToolTimeout
		o.Logger = logging.ForComponent(opts.Logger, "agent")
	}
	agents, err := graph.NewRegistry(
		agent.NewEmotionalAgent(gw, agentOpts),
		agent.NewStudyAgent(gw, agentOpts),
		agent.NewCommunityAgent(gw, agentOpts),
		agent.NewSocialAgent(gw, agentOpts),
	)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(agents, func(o *orchestrator.Options) {
		o.Observer = observer
		o.Logger = logging.ForComponent(opts.Logger, "orchestrator")
		if opts.Orchestrator != nil {
			opts.Orchestrator(o)
		}
	})

	s := &Saathi{
		orch:      orch,
		gateway:   gw,
		agents:    agents,
		preds:     Predicates(opts.Evaluator),
		tracker:   tracker,
		publisher: opts.Publisher,
		logger:    opts.Logger,
	}
	for capability, root := range DefaultGraphs(opts.LoopIterations) {
		if err := s.Register(capability, root); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DefaultGraphs returns the graph bound to each capability by New:
//   - emotional-support: the emotional agent revised until its tone passes
//   - study-planning: a mood check-in, then a plan revised until it is clear
//   - community: the community agent
//   - social: a mood check-in, then a post drafted from it
func DefaultGraphs(loopIterations int) map[core.Capability]graph.Node {
	if loopIterations < 1 {
		loopIterations = DefaultLoopIterations
	}
	return map[core.Capability]graph.Node{
		core.CapabilityEmotionalSupport: &graph.Loop{
			Label:         "support",
			Body:          &graph.Leaf{Agent: agent.EmotionalAgentName},
			MaxIterations: loopIterations,
			Stop:          agent.ToneOK,
			StopName:      "tone_ok",
		},
		core.CapabilityStudyPlanning: &graph.Sequential{
			Label: "study",
			Steps: []graph.Node{
				&graph.Leaf{Agent: agent.EmotionalAgentName},
				&graph.Loop{
					Label:         "plan",
					Body:          &graph.Leaf{Agent: agent.StudyAgentName},
					MaxIterations: loopIterations,
					Stop:          agent.ClarityOK,
					StopName:      "clarity_ok",
				},
			},
		},
		core.CapabilityCommunity: &graph.Leaf{Agent: agent.CommunityAgentName},
		core.CapabilitySocial: &graph.Sequential{
			Label:      "share",
			BestEffort: true,
			Steps: []graph.Node{
				&graph.Leaf{Agent: agent.EmotionalAgentName},
				&graph.Leaf{Agent: agent.SocialAgentName},
			},
		},
	}
}

// Predicates returns the stop predicates graph definitions may name.
func Predicates(e *evaluation.Evaluator) graph.Predicates {
	return graph.Predicates{
		"always":     graph.Always,
		"tone_ok":    agent.ToneOK,
		"clarity_ok": agent.ClarityOK,
		"grade_a":    evaluation.AcceptGrade(e, evaluation.GradeA),
		"grade_b":    evaluation.AcceptGrade(e, evaluation.GradeB),
	}
}

// Register binds root to capability, replacing the current graph.
func (s *Saathi) Register(capability core.Capability, root graph.Node) error {
	return s.orch.Register(capability, root)
}

// LoadGraphs decodes a YAML graphs document and registers every graph in it.
// Nothing is registered when any graph is invalid.
func (s *Saathi) LoadGraphs(data []byte) error {
	graphs, err := graph.DecodeGraphs(data, s.preds)
	if err != nil {
		return err
	}
	for capability, root := range graphs {
		if err := s.agents.Check(root); err != nil {
			return fmt.Errorf("graph %s: %w", capability, err)
		}
	}
	for capability, root := range graphs {
		if err := s.Register(capability, root); err != nil {
			return err
		}
	}
	return nil
}

// HandleTurn runs one user turn. See orchestrator.Orchestrator.HandleTurn.
func (s *Saathi) HandleTurn(ctx context.Context, sessionID string, in orchestrator.Input) (*orchestrator.Response, error) {
	return s.orch.HandleTurn(ctx, sessionID, in)
}

// Orchestrator exposes the underlying orchestrator.
func (s *Saathi) Orchestrator() *orchestrator.Orchestrator { return s.orch }

// Agents exposes the agent registry.
func (s *Saathi) Agents() *graph.Registry { return s.agents }

// Predicates returns the stop predicates LoadGraphs resolves.
func (s *Saathi) Predicates() graph.Predicates { return s.preds }

// Performance returns the latency and failure report of an agent.
func (s *Saathi) Performance(agentName string) (evaluation.Report, bool) {
	return s.tracker.Report(agentName)
}

// Publisher returns the social publisher. With the default it is a
// *tool.Outbox holding every published post.
func (s *Saathi) Publisher() tool.Publisher { return s.publisher }

// Close releases the resources acquired by Build. It is safe to call on a
// Saathi created by New.
func (s *Saathi) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func toolRegistry(pub tool.Publisher, extra []tool.Tool) (*tool.Registry, error) {
	defaults := []tool.Tool{
		tool.NewSchedulingTool(tool.Static(defaultSlots)),
		tool.NewGeoTool(tool.Static(defaultPlaces)),
		tool.NewMediaTool(tool.Static(defaultMedia)),
		tool.NewSocialTool(pub),
	}
	byName := make(map[string]int, len(defaults)+len(extra))
	var all []tool.Tool
	for _, t := range append(defaults, extra...) {
		if i, ok := byName[t.Name()]; ok {
			all[i] = t
			continue
		}
		byName[t.Name()] = len(all)
		all = append(all, t)
	}
	return tool.NewRegistry(all...)
}

var (
	defaultSlots = []map[string]any{
		{"day": "monday", "start": "18:00", "minutes": 45},
		{"day": "wednesday", "start": "17:30", "minutes": 45},
		{"day": "saturday", "start": "10:00", "minutes": 90},
	}
	defaultPlaces = []map[string]any{
		{"name": "Public library study circle", "kind": "group"},
		{"name": "Community garden", "kind": "volunteering"},
	}
	defaultMedia = []map[string]any{
		{"title": "Five minute breathing exercise", "kind": "audio"},
		{"title": "Gentle evening stretches", "kind": "video"},
	}
)
