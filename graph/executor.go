package graph

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/saathi/a2a"
	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/logging"
)

// DefaultWorkers bounds parallel branches when neither the node nor the
// executor options say otherwise.
const DefaultWorkers = 4

// Options configures an Executor.
type Options struct {
	// Workers is the default parallel worker pool size.
	Workers  int
	Observer core.Observer
	Logger   logging.Logger
}

// Executor runs composition graphs against registered agents.
type Executor struct {
	agents *Registry
	opts   Options
}

// NewExecutor returns an executor resolving leaves from agents.
func NewExecutor(agents *Registry, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Workers:  DefaultWorkers,
		Observer: core.NopObserver{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Observer == nil {
		opts.Observer = core.NopObserver{}
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Executor{agents: agents, opts: opts}
}

// Agents returns the registry leaves are resolved from.
func (e *Executor) Agents() *Registry { return e.agents }

// Run is the input of one graph execution.
type Run struct {
	// Session is the session copy agents read, its last turn being the one
	// answered. Agents must not mutate it.
	Session *core.Session
	// View is the committed memory snapshot of the session. Nil means empty.
	View *View
	// Bus is the run's A2A bus. Nil creates a private one.
	Bus *a2a.Bus

	scope *a2a.Scope // innermost open loop iteration, nil outside loops
}

// Execute runs root and returns its outcome. The error is non-nil only for
// fatal errors and cancellation; in both cases nothing may be committed.
// Non-fatal agent failures are reported through Outcome.Status and
// Outcome.Failures.
func (e *Executor) Execute(ctx context.Context, root Node, run Run) (Outcome, error) {
	if err := e.agents.Check(root); err != nil {
		return failed(), err
	}
	if run.Session == nil {
		return failed(), core.Fatal("graph", errors.New("nil session"))
	}
	if run.View == nil {
		run.View = NewView(run.Session.ID, nil)
	}
	if run.Bus == nil {
		runID := core.NewID()
		if info, ok := core.RunFromContext(ctx); ok && info.RunID != "" {
			runID = info.RunID
		}
		run.Bus = a2a.NewBus(runID)
	}

	state := core.NewRunState()
	if err := state.Start(); err != nil {
		return failed(), core.Fatal("graph", err)
	}

	out, err := e.exec(ctx, root, root.Name(), run.View, run)
	if err != nil {
		_ = state.Finish(core.StatusFailed)
		return failed(), err
	}
	if err := state.Finish(out.Status); err != nil {
		return failed(), core.Fatal("graph", err)
	}
	return out, nil
}

func (e *Executor) exec(ctx context.Context, n Node, path string, view *View, run Run) (out Outcome, err error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	ctx = core.WithNodePath(ctx, path)
	start := time.Now()

	entered := core.NewEvent(ctx, core.EventNodeEntered)
	entered.Attrs = map[string]any{"kind": string(n.Kind())}
	e.opts.Observer.Observe(ctx, entered)

	defer func() {
		status := out.Status
		if err != nil {
			status = core.StatusFailed
		}
		exited := core.NewEvent(ctx, core.EventNodeExited)
		exited.Duration = time.Since(start)
		exited.Status = status
		exited.Attrs = map[string]any{"kind": string(n.Kind())}
		if out.Iterations > 0 {
			exited.Attrs["iterations"] = out.Iterations
		}
		if err != nil {
			exited.Err = err.Error()
		}
		e.opts.Observer.Observe(ctx, exited)
		e.logNode(path, n.Kind(), status, exited.Duration, err)
	}()

	switch t := n.(type) {
	case *Leaf:
		return e.leaf(ctx, t, path, view, run)
	case *Sequential:
		return e.sequential(ctx, t, path, view, run)
	case *Parallel:
		return e.parallel(ctx, t, path, view, run)
	case *Loop:
		return e.loop(ctx, t, path, view, run)
	default:
		return Outcome{}, malformed("unknown node type %T", n)
	}
}

func (e *Executor) leaf(ctx context.Context, n *Leaf, path string, view *View, run Run) (Outcome, error) {
	a, err := e.agents.Get(n.Agent)
	if err != nil {
		return Outcome{}, err
	}
	spec := a.Spec()

	ob := run.Bus.Outbox(spec.Name, func(o *a2a.OutboxOptions) {
		o.Subscriber = path
		o.Scope = run.scope
	})
	out, delta, err := a.Run(ctx, run.Session, view, ob)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		ob.Discard()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		if core.IsFatal(err) {
			return Outcome{}, err
		}
		e.opts.Logger.Warn("agent failed", "path", path, "agent", spec.Name, "error", err)
		return failed(Failure{Path: path, Agent: spec.Name, Err: err}), nil
	}

	for _, w := range delta.Writes() {
		if !spec.Declares(w.Category) {
			ob.Discard()
			return Outcome{}, core.Fatal("graph", fmt.Errorf("%w: %s wrote %s", core.ErrUndeclaredWrite, spec.Name, w.Category))
		}
	}
	if _, err := ob.Commit(); err != nil {
		return Outcome{}, core.Fatal("a2a commit", err)
	}

	if out.Agent == "" {
		out.Agent = spec.Name
	}
	return Outcome{
		Status:  core.StatusSucceeded,
		Output:  out,
		Outputs: []core.Output{out},
		Delta:   delta,
	}, nil
}

func (e *Executor) sequential(ctx context.Context, n *Sequential, path string, view *View, run Run) (Outcome, error) {
	res := Outcome{Status: core.StatusSucceeded}
	for _, step := range n.Steps {
		r, err := e.exec(ctx, step, core.ChildPath(path, step.Name()), view.With(res.Delta), run)
		if err != nil {
			return Outcome{}, err
		}
		res.Failures = append(res.Failures, r.Failures...)
		if r.Status == core.StatusFailed {
			if !n.BestEffort {
				return failed(res.Failures...), nil
			}
			res.Status = Worst(res.Status, core.StatusPartiallyFailed)
			continue
		}
		res.Status = Worst(res.Status, r.Status)
		res.Delta.Merge(r.Delta)
		res.Outputs = append(res.Outputs, r.Outputs...)
	}
	if len(res.Outputs) == 0 {
		return failed(res.Failures...), nil
	}
	res.Output = res.Outputs[len(res.Outputs)-1]
	return res, nil
}

func (e *Executor) parallel(ctx context.Context, n *Parallel, path string, view *View, run Run) (Outcome, error) {
	workers := n.Workers
	if workers == 0 {
		workers = e.opts.Workers
	}

	results := make([]Outcome, len(n.Branches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, branch := range n.Branches {
		g.Go(func() error {
			r, err := e.exec(gctx, branch, core.ChildPath(path, branch.Name()), view, run)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	var (
		res       = Outcome{Status: core.StatusSucceeded}
		succeeded int
	)
	for _, r := range results {
		res.Failures = append(res.Failures, r.Failures...)
		if r.Status != core.StatusFailed {
			succeeded++
		}
	}
	failedBranches := len(results) - succeeded
	if succeeded < n.quorum() || (n.AllOrNothing && failedBranches > 0) {
		e.opts.Logger.Warn("parallel node failed", "path", path, "succeeded", succeeded, "quorum", n.quorum(), "all_or_nothing", n.AllOrNothing)
		return failed(res.Failures...), nil
	}

	for _, r := range results {
		if r.Status == core.StatusFailed {
			res.Status = Worst(res.Status, core.StatusPartiallyFailed)
			continue
		}
		res.Status = Worst(res.Status, r.Status)
		res.Delta.Merge(r.Delta)
		res.Outputs = append(res.Outputs, r.Outputs...)
	}
	res.Output = res.Outputs[len(res.Outputs)-1]
	return res, nil
}

func (e *Executor) loop(ctx context.Context, n *Loop, path string, view *View, run Run) (Outcome, error) {
	var (
		acc     core.Delta
		last    Outcome
		pending *a2a.Scope // messages of the latest iteration
	)
	defer func() {
		if pending != nil {
			pending.Discard()
		}
	}()
	settle := func() error {
		_, err := pending.Commit()
		pending = nil
		if err != nil {
			return core.Fatal("a2a commit", err)
		}
		return nil
	}

	for i := 1; i <= n.MaxIterations; i++ {
		// a new iteration supersedes the messages of the rejected one
		if pending != nil {
			pending.Discard()
		}
		iterRun := run
		if run.scope != nil {
			iterRun.scope = run.scope.Scope()
		} else {
			iterRun.scope = run.Bus.Scope()
		}
		pending = iterRun.scope

		iterPath := core.ChildPath(core.ChildPath(path, strconv.Itoa(i)), n.Body.Name())
		r, err := e.exec(ctx, n.Body, iterPath, view, iterRun)
		if err != nil {
			return Outcome{}, err
		}
		if r.Status == core.StatusFailed {
			r.Iterations = i
			return r, nil
		}

		acc.Merge(r.Delta)
		last = r
		last.Iterations = i
		if n.Stop(r.Output) {
			if err := settle(); err != nil {
				return Outcome{}, err
			}
			last.Delta = acc
			return last, nil
		}
		e.opts.Logger.Debug("loop iteration rejected", "path", path, "iteration", i, "stop", n.StopName)
	}

	if pending != nil {
		if err := settle(); err != nil {
			return Outcome{}, err
		}
	}
	last.Delta = acc
	last.Status = Worst(last.Status, core.StatusExhausted)
	last.Output.LowConfidence = true
	if k := len(last.Outputs); k > 0 {
		last.Outputs[k-1].LowConfidence = true
	}
	return last, nil
}

type nodeLogger interface {
	LogNodeExecution(path, kind, status string, dur time.Duration, err error)
}

func (e *Executor) logNode(path string, kind Kind, status core.RunStatus, dur time.Duration, err error) {
	if l, ok := e.opts.Logger.(nodeLogger); ok {
		l.LogNodeExecution(path, string(kind), status.String(), dur, err)
		return
	}
	e.opts.Logger.Debug("node executed", "path", path, "kind", kind, "status", status, "duration", dur, "error", err)
}
