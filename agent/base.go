package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/gateway"
	"github.com/hupe1980/saathi/internal/util"
	"github.com/hupe1980/saathi/logging"
	"github.com/hupe1980/saathi/model"
	"github.com/hupe1980/saathi/tool"
)

// Reasoner is the reasoning surface agents depend on. *gateway.Gateway
// implements it.
type Reasoner interface {
	Infer(ctx context.Context, req gateway.Request) (gateway.Result, error)
}

var _ Reasoner = (*gateway.Gateway)(nil)

// Options configures the shared agent behavior.
type Options struct {
	// Instruction is the system prompt template.
	Instruction Instruction
	// Prompt is the user prompt template. It is rendered against the turn
	// fields plus whatever the concrete agent adds.
	Prompt Instruction
	// Fallback is answered when the gateway degrades.
	Fallback string
	// Validators are attached to every reasoning call.
	Validators []gateway.Validator
	// Tools resolves the tools the agent may call. Nil means no tools.
	Tools *tool.Registry
	// ToolTimeout bounds each tool call. Default tool.DefaultTimeout.
	ToolTimeout time.Duration
	// InferenceTimeout overrides the gateway's per-attempt timeout when > 0.
	InferenceTimeout time.Duration
	Temperature      float64
	MaxTokens        int
	Logger           logging.Logger
}

// BaseAgent carries the identity, prompt templates and collaborators shared
// by the concrete agents. Embed it and supply a Run method to satisfy
// core.Agent. BaseAgent holds no per-run state, so one value may serve many
// concurrent runs.
type BaseAgent struct {
	spec     core.AgentSpec
	reasoner Reasoner
	opts     Options
}

// NewBaseAgent constructs a BaseAgent. A nil reasoner is allowed: every
// reasoning call then degrades to the fallback text.
func NewBaseAgent(spec core.AgentSpec, r Reasoner, optFns ...func(o *Options)) BaseAgent {
	opts := Options{
		ToolTimeout: tool.DefaultTimeout,
		Temperature: 0.7,
		MaxTokens:   1024,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return BaseAgent{spec: spec, reasoner: r, opts: opts}
}

// Spec returns a copy of the agent's spec.
func (b *BaseAgent) Spec() core.AgentSpec {
	spec := b.spec
	spec.Reads = slices.Clone(b.spec.Reads)
	spec.Writes = slices.Clone(b.spec.Writes)
	return spec
}

// Name returns the agent name.
func (b *BaseAgent) Name() string { return b.spec.Name }

// Fallback returns the text answered when reasoning degrades.
func (b *BaseAgent) Fallback() string { return b.opts.Fallback }

// Reply is the outcome of a reasoning call after the agent's error policy has
// been applied.
type Reply struct {
	Text string
	// Issues are validator findings on Text. The text is still usable; the
	// loop controller decides whether to accept it.
	Issues []string
	// Degraded is set when Text is the fallback.
	Degraded bool
	// Cause is the error that degraded the reply.
	Cause error
}

// Reason renders the prompt templates with data and asks the gateway. The
// error policy is:
//   - success: the model text
//   - invalid output: the raw text plus the validator reasons
//   - cancellation and fatal errors: returned, the run fails
//   - anything else (timeouts, provider errors, an exhausted budget): the
//     fallback text, marked degraded
//
// extra is forwarded as request context and is rendered under the prompt.
func (b *BaseAgent) Reason(ctx context.Context, in Input, data, extra map[string]any) (Reply, error) {
	vars := templateData(in, data)

	instructions, err := b.render(b.opts.Instruction, in, vars)
	if err != nil {
		return Reply{}, core.Fatal(b.spec.Name+": instruction", err)
	}
	prompt, err := b.render(b.opts.Prompt, in, vars)
	if err != nil {
		return Reply{}, core.Fatal(b.spec.Name+": prompt", err)
	}
	if prompt == "" {
		prompt = in.Text
	}

	if b.reasoner == nil {
		return b.degrade(errors.New("no reasoner configured")), nil
	}

	res, err := b.reasoner.Infer(ctx, gateway.Request{
		Request: model.Request{
			Instructions: instructions,
			Prompt:       prompt,
			Context:      extra,
			Temperature:  b.opts.Temperature,
			MaxTokens:    b.opts.MaxTokens,
		},
		Timeout:    b.opts.InferenceTimeout,
		Validators: b.opts.Validators,
	})
	if err == nil {
		return Reply{Text: res.Text}, nil
	}

	var invalid *core.InvalidOutputError
	switch {
	case errors.As(err, &invalid):
		b.opts.Logger.Debug("agent output failed validation", "agent", b.spec.Name, "reasons", invalid.Reasons)
		return Reply{Text: invalid.Raw, Issues: slices.Clone(invalid.Reasons)}, nil
	case ctx.Err() != nil:
		return Reply{}, ctx.Err()
	case core.IsFatal(err):
		return Reply{}, err
	default:
		return b.degrade(err), nil
	}
}

func (b *BaseAgent) degrade(cause error) Reply {
	b.opts.Logger.Warn("agent degraded to fallback", "agent", b.spec.Name, "error", cause)
	return Reply{Text: b.opts.Fallback, Degraded: true, Cause: cause}
}

func (b *BaseAgent) render(inst Instruction, in Input, vars map[string]any) (string, error) {
	if inst.IsZero() {
		return "", nil
	}
	text, err := inst.Resolve(in)
	if err != nil {
		return "", err
	}
	out, err := util.RenderTemplate(text, vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// templateData merges the turn fields, the input text (as "input") and the
// agent supplied data, later sources winning.
func templateData(in Input, data map[string]any) map[string]any {
	vars := make(map[string]any, len(in.Fields)+len(data)+1)
	maps.Copy(vars, in.Fields)
	vars["input"] = in.Text
	maps.Copy(vars, data)
	return vars
}

// HasTool reports whether the named tool is configured. Agents skip optional
// tools that are not configured instead of degrading.
func (b *BaseAgent) HasTool(name string) bool {
	_, ok := b.opts.Tools.Get(name)
	return ok
}

// CallTool invokes a tool fail-soft under the configured timeout.
func (b *BaseAgent) CallTool(ctx context.Context, name, op string, args map[string]any) tool.Result {
	res := b.opts.Tools.Invoke(ctx, name, op, args, func(o *tool.InvokeOptions) {
		o.Timeout = b.opts.ToolTimeout
		o.Logger = b.opts.Logger
	})
	if res.Degraded() {
		b.opts.Logger.Warn("tool call degraded", "agent", b.spec.Name, "tool", name, "op", op, "error", res.Err)
	}
	return res
}

// Output builds the agent output for reply.
func (b *BaseAgent) Output(reply Reply, data map[string]any) core.Output {
	return core.Output{
		Agent:    b.spec.Name,
		Text:     reply.Text,
		Data:     data,
		Issues:   reply.Issues,
		Degraded: reply.Degraded,
	}
}
