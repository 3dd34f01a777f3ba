package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/saathi/a2a"
	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/graph"
	"github.com/hupe1980/saathi/logging"
	"github.com/hupe1980/saathi/memory"
	"github.com/hupe1980/saathi/session"
)

// MemoryStore is the part of the memory bank the orchestrator needs.
type MemoryStore interface {
	Put(ctx context.Context, rec core.MemoryRecord, optFns ...memory.PutOption) (core.MemoryRecord, error)
	Snapshot(ctx context.Context, sessionID string) ([]core.MemoryRecord, error)
}

var _ MemoryStore = (*memory.InMemoryStore)(nil)

// sweeper is implemented by session stores that expire sessions in process.
type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// MaxConcurrentRuns bounds runs in flight across all sessions. Default 10.
	MaxConcurrentRuns int
	// MaxInferenceCalls caps reasoning calls per run. Zero means unlimited.
	MaxInferenceCalls int
	// RunTimeout bounds a whole run. Zero disables the bound.
	RunTimeout   time.Duration
	SessionStore core.SessionStore
	MemoryStore  MemoryStore
	// Workers is the default parallel worker pool size of the executor.
	Workers  int
	Observer core.Observer
	Logger   logging.Logger
}

// Input is one user turn.
type Input struct {
	Capability core.Capability `json:"capability"`
	Text       string          `json:"text"`
	Fields     map[string]any  `json:"fields,omitempty"`
}

// Orchestrator coordinates turns. Public methods are safe for concurrent use.
type Orchestrator struct {
	exec *graph.Executor
	opts Options
	sem  *semaphore.Weighted

	graphsMu sync.RWMutex
	graphs   map[core.Capability]graph.Node

	sessions *keyedMutex

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// New constructs an Orchestrator resolving leaves from agents.
func New(agents *graph.Registry, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		MaxConcurrentRuns: 10,
		RunTimeout:        2 * time.Minute,
		Workers:           graph.DefaultWorkers,
		Observer:          core.NopObserver{},
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Observer == nil {
		opts.Observer = core.NopObserver{}
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.MemoryStore == nil {
		var pins memory.PinSource
		if p, ok := opts.SessionStore.(memory.PinSource); ok {
			pins = p
		}
		opts.MemoryStore = memory.New(func(o *memory.Options) {
			o.Pins = pins
			o.Observer = opts.Observer
			o.Logger = opts.Logger
		})
	}
	opts.MaxConcurrentRuns = max(opts.MaxConcurrentRuns, 1)

	exec := graph.NewExecutor(agents, func(o *graph.Options) {
		o.Workers = opts.Workers
		o.Observer = opts.Observer
		o.Logger = opts.Logger
	})

	return &Orchestrator{
		exec:       exec,
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrentRuns)),
		graphs:     make(map[core.Capability]graph.Node),
		sessions:   newKeyedMutex(),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Register binds root to capability, replacing any earlier graph. The tree is
// validated and every leaf must name a registered agent.
func (o *Orchestrator) Register(capability core.Capability, root graph.Node) error {
	if capability == "" {
		return core.Fatal("register graph", errors.New("empty capability"))
	}
	if err := o.exec.Agents().Check(root); err != nil {
		return fmt.Errorf("register graph %s: %w", capability, err)
	}
	o.graphsMu.Lock()
	defer o.graphsMu.Unlock()
	o.graphs[capability] = root
	return nil
}

// Capabilities returns the capabilities with a registered graph, sorted.
func (o *Orchestrator) Capabilities() []core.Capability {
	o.graphsMu.RLock()
	defer o.graphsMu.RUnlock()
	return slices.Sorted(maps.Keys(o.graphs))
}

// Graph returns the graph registered for capability.
func (o *Orchestrator) Graph(capability core.Capability) (graph.Node, bool) {
	o.graphsMu.RLock()
	defer o.graphsMu.RUnlock()
	n, ok := o.graphs[capability]
	return n, ok
}

// HandleTurn answers one user turn.
//
// The error is non-nil only when no answer could be produced: the run Failed
// (a *RunError, returned together with the response describing the
// failures), was cancelled or timed out (the context error), or hit a fatal
// error. Degraded, partially failed and exhausted runs return a nil error and
// report their status in the response.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID string, in Input) (*Response, error) {
	if sessionID == "" {
		return nil, errors.New("orchestrator: empty session id")
	}
	root, ok := o.Graph(in.Capability)
	if !ok {
		return nil, core.Fatal("handle turn", fmt.Errorf("%w: %q", core.ErrUnknownCapability, in.Capability))
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.sem.Release(1)

	unlock := o.sessions.lock(sessionID)
	defer unlock()

	sess, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	runID := core.NewID()
	ctx, cancel := o.runContext(ctx)
	defer cancel()
	o.track(runID, cancel)
	defer o.untrack(runID)

	ctx = core.WithRun(ctx, core.RunInfo{
		RunID:      runID,
		SessionID:  sessionID,
		Capability: in.Capability,
		Budget:     core.NewInferenceBudget(o.opts.MaxInferenceCalls),
	})

	start := time.Now()
	startedEv := core.NewEvent(ctx, core.EventRunStarted)
	startedEv.Attrs = map[string]any{"capability": string(in.Capability), "session_id": sessionID}
	o.opts.Observer.Observe(ctx, startedEv)
	logger := logging.ForRun(o.opts.Logger, sessionID, runID)
	logger.Info("run started", "capability", string(in.Capability))

	resp, err := o.run(ctx, logger, sess, root, runID, in, start)

	finishedEv := core.NewEvent(ctx, core.EventRunFinished)
	finishedEv.Duration = time.Since(start)
	finishedEv.Status = core.StatusFailed
	if resp != nil {
		finishedEv.Status = resp.Status
	}
	if err != nil {
		finishedEv.Err = err.Error()
	}
	o.opts.Observer.Observe(ctx, finishedEv)
	logRun(logger, finishedEv.Status, finishedEv.Duration, err)

	return resp, err
}

func (o *Orchestrator) run(ctx context.Context, logger logging.Logger, sess *core.Session, root graph.Node, runID string, in Input, start time.Time) (*Response, error) {
	pending := core.Turn{
		RunID:      runID,
		Capability: in.Capability,
		Input:      in.Text,
		Fields:     core.CloneMap(in.Fields),
		Status:     core.StatusRunning,
		Started:    start.UTC(),
	}
	view := sess.Clone()
	view.AppendTurn(pending)

	records, err := o.opts.MemoryStore.Snapshot(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: memory snapshot: %w", err)
	}
	bus := a2a.NewBus(runID)

	out, err := o.exec.Execute(ctx, root, graph.Run{
		Session: view,
		View:    graph.NewView(sess.ID, records),
		Bus:     bus,
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		RunID:         runID,
		SessionID:     sess.ID,
		Capability:    in.Capability,
		Text:          aggregate(root, out),
		Outputs:       out.Outputs,
		Status:        out.Status,
		Degraded:      out.Degraded(),
		LowConfidence: out.LowConfidence(),
		Failures:      out.Failures,
		Iterations:    out.Iterations,
		Transcript:    bus.History(),
	}

	if out.Status == core.StatusFailed {
		resp.Elapsed = time.Since(start)
		return resp, &RunError{RunID: runID, Failures: out.Failures}
	}

	// Commit and save ignore cancellation from here on.
	commitCtx := context.WithoutCancel(ctx)
	resp.Committed, resp.Failures = o.commit(commitCtx, logger, sess.ID, out.Delta, resp.Failures)
	if len(resp.Failures) > len(out.Failures) {
		resp.Status = graph.Worst(resp.Status, core.StatusPartiallyFailed)
	}

	final := pending
	final.Outputs = out.Outputs
	final.Response = resp.Text
	final.Status = resp.Status
	final.Finished = time.Now().UTC()
	sess.ApplyScratch(out.Delta.Scratch())
	sess.AppendTurn(final)
	if err := o.opts.SessionStore.Save(commitCtx, sess); err != nil {
		return nil, fmt.Errorf("orchestrator: save session: %w", err)
	}

	resp.Elapsed = time.Since(start)
	return resp, nil
}

// commit applies the writes of d in order. A rejected write (capacity,
// superseded) leaves the store untouched for that key and is reported as a
// failure; the remaining writes still apply.
func (o *Orchestrator) commit(ctx context.Context, logger logging.Logger, sessionID string, d core.Delta, failures []graph.Failure) ([]core.MemoryRecord, []graph.Failure) {
	var committed []core.MemoryRecord
	for _, w := range d.Writes() {
		rec := core.MemoryRecord{
			Key:        core.RecordKey{SessionID: sessionID, Category: w.Category, Name: w.Name},
			Payload:    w.Payload,
			Importance: w.Importance,
			Size:       w.Size,
		}
		stored, err := o.opts.MemoryStore.Put(ctx, rec)
		if err != nil {
			logger.Warn("memory write rejected", "key", rec.Key.String(), "kind", core.Classify(err).String(), "error", err)
			failures = append(failures, graph.Failure{Path: "commit/" + string(w.Category) + "/" + w.Name, Err: err})
			continue
		}
		committed = append(committed, stored)
	}
	return committed, failures
}

func (o *Orchestrator) loadSession(ctx context.Context, id string) (*core.Session, error) {
	sess, err := o.opts.SessionStore.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, core.ErrSessionNotFound) {
		return nil, fmt.Errorf("orchestrator: load session %s: %w", id, err)
	}
	sess, err = o.opts.SessionStore.Create(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create session %s: %w", id, err)
	}
	o.opts.Logger.Debug("session created", "session_id", id)
	return sess, nil
}

func (o *Orchestrator) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.RunTimeout > 0 {
		return context.WithTimeout(ctx, o.opts.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// Cancel cancels an in-flight run by ID.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	cancel, exists := o.activeRuns[runID]
	o.mu.Unlock()
	if !exists {
		return fmt.Errorf("run %s: %w", runID, core.ErrNotFound)
	}
	cancel()
	return nil
}

// ActiveRuns returns the IDs of the runs in flight, sorted.
func (o *Orchestrator) ActiveRuns() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Sorted(maps.Keys(o.activeRuns))
}

// SweepSessions drops expired sessions when the session store expires them in
// process. Stores relying on server-side TTLs report zero.
func (o *Orchestrator) SweepSessions(ctx context.Context) (int, error) {
	s, ok := o.opts.SessionStore.(sweeper)
	if !ok {
		return 0, nil
	}
	n, err := s.Sweep(ctx)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: sweep sessions: %w", err)
	}
	if n > 0 {
		o.opts.Logger.Info("expired sessions swept", "removed", n)
	}
	return n, nil
}

func (o *Orchestrator) track(runID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeRuns[runID] = cancel
}

func (o *Orchestrator) untrack(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

func logRun(logger logging.Logger, status core.RunStatus, dur time.Duration, err error) {
	switch {
	case err != nil:
		logger.Warn("run failed", "status", status.String(), "duration", dur, "kind", core.Classify(err).String(), "error", err)
	default:
		logger.Info("run finished", "status", status.String(), "duration", dur)
	}
}

// aggregate renders the response text. Parallel roots answer with every
// branch output; other roots answer with their primary output.
func aggregate(root graph.Node, out graph.Outcome) string {
	if root.Kind() != graph.KindParallel || len(out.Outputs) < 2 {
		return out.Output.Text
	}
	texts := make([]string, 0, len(out.Outputs))
	for _, o := range out.Outputs {
		if t := strings.TrimSpace(o.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n")
}
