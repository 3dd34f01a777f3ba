package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/logging"
	"github.com/hupe1980/saathi/model"
)

// Options configures a Gateway.
type Options struct {
	// Timeout bounds every single attempt. Default 30s.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt on
	// transient failure. Default 2.
	MaxRetries int
	// InitialBackoff is the wait before the first retry. Default 200ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff. Default 5s.
	MaxBackoff time.Duration
	// Multiplier grows the backoff per retry. Default 2.
	Multiplier float64
	// Jitter adds up to this fraction of random extra wait. Default 0.
	Jitter float64
	// RateLimit caps attempts per second across callers. Zero disables it.
	RateLimit float64
	// Burst is the limiter bucket size. Default 1.
	Burst int
	// Observer receives RetryAttempted events.
	Observer core.Observer
	Logger   logging.Logger
}

// Request is one reasoning call.
type Request struct {
	model.Request
	// Timeout overrides Options.Timeout for this call when > 0.
	Timeout time.Duration
	// Validators run on the returned text. Any reason makes the call fail
	// with *core.InvalidOutputError; it is never retried.
	Validators []Validator
	// Schema, when set, requires the text to be JSON matching it.
	Schema *Schema
}

// Result is a successful reasoning call.
type Result struct {
	Text     string
	Attempts int
	Usage    model.TokenUsage
	Elapsed  time.Duration
}

// RetryExhaustedError is returned once every attempt failed transiently. It
// matches core.ErrInferenceTimeout when the last attempt timed out.
type RetryExhaustedError struct {
	Attempts int
	TimedOut bool
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("inference timed out after %d attempts: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("inference failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes the last attempt's error and, on timeout, ErrInferenceTimeout.
func (e *RetryExhaustedError) Unwrap() []error {
	if e.TimedOut {
		return []error{core.ErrInferenceTimeout, e.Last}
	}
	return []error{e.Last}
}

// Gateway wraps a model.Model with per-attempt timeouts, bounded retries with
// exponential backoff, rate limiting and output validation.
type Gateway struct {
	model   model.Model
	limiter *rate.Limiter
	opts    Options
}

// New creates a gateway over m.
func New(m model.Model, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Timeout:        30 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		Burst:          1,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Observer == nil {
		opts.Observer = core.NopObserver{}
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = 1
	}

	g := &Gateway{model: m, opts: opts}
	if opts.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.Burst, 1))
	}
	return g
}

// Model returns the wrapped model's metadata.
func (g *Gateway) Model() model.Info { return g.model.Info() }

// Infer runs req against the model.
//
// Error contract:
//   - *core.InvalidOutputError when a validator rejects the text (no retry)
//   - *RetryExhaustedError after 1+MaxRetries transient failures
//   - ctx.Err() when the caller's context ends
//   - core.ErrBudgetExhausted when the run's inference budget is spent
//   - fatal errors from the model are returned as is
func (g *Gateway) Infer(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if info, ok := core.RunFromContext(ctx); ok && info.Budget != nil {
		if err := info.Budget.Acquire(); err != nil {
			return Result{}, err
		}
	}

	timeout := g.opts.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return Result{}, err
			}
		}

		resp, err := g.attempt(ctx, req.Request, timeout)
		if err == nil {
			res := Result{Text: resp.Text, Attempts: attempt, Usage: resp.Usage, Elapsed: time.Since(start)}
			g.logCall(res.Usage.TotalTokens, attempt, res.Elapsed, nil)
			if reasons := validate(resp.Text, req); len(reasons) > 0 {
				return res, &core.InvalidOutputError{Raw: resp.Text, Reasons: reasons}
			}
			return res, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if core.IsFatal(err) {
			g.logCall(0, attempt, time.Since(start), err)
			return Result{}, err
		}

		lastErr = err
		timedOut := errors.Is(err, context.DeadlineExceeded)
		if attempt > g.opts.MaxRetries {
			exhausted := &RetryExhaustedError{Attempts: attempt, TimedOut: timedOut, Last: lastErr}
			g.logCall(0, attempt, time.Since(start), exhausted)
			return Result{}, exhausted
		}

		wait := g.backoff(attempt)
		ev := core.NewEvent(ctx, core.EventRetryAttempted)
		ev.Attempt = attempt
		ev.Err = err.Error()
		ev.Attrs = map[string]any{"backoff": wait, "timed_out": timedOut, "model": g.model.Info().Name}
		g.opts.Observer.Observe(ctx, ev)
		g.opts.Logger.Warn("inference attempt failed, retrying", "attempt", attempt, "backoff", wait, "error", err)

		if err := sleep(ctx, wait); err != nil {
			return Result{}, err
		}
	}
}

func (g *Gateway) attempt(ctx context.Context, req model.Request, timeout time.Duration) (model.Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp model.Response
		err  error
	}

	// Buffered so an abandoned call can still deliver and exit.
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("model %s panicked: %v", g.model.Info().Name, r)}
			}
		}()
		resp, err := g.model.Infer(actx, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && actx.Err() != nil && ctx.Err() == nil {
			return r.resp, fmt.Errorf("attempt exceeded %s: %w", timeout, context.DeadlineExceeded)
		}
		return r.resp, r.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return model.Response{}, err
		}
		return model.Response{}, fmt.Errorf("attempt exceeded %s: %w", timeout, context.DeadlineExceeded)
	}
}

// backoff returns initial × multiplier^(retry-1), capped and jittered.
func (g *Gateway) backoff(retry int) time.Duration {
	d := float64(g.opts.InitialBackoff) * math.Pow(g.opts.Multiplier, float64(retry-1))
	if g.opts.MaxBackoff > 0 && d > float64(g.opts.MaxBackoff) {
		d = float64(g.opts.MaxBackoff)
	}
	if g.opts.Jitter > 0 {
		d += d * g.opts.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

type inferenceLogger interface {
	LogInferenceCall(model string, tokens, attempts int, dur time.Duration, success bool, err error)
}

func (g *Gateway) logCall(tokens, attempts int, dur time.Duration, err error) {
	name := g.model.Info().Name
	if l, ok := g.opts.Logger.(inferenceLogger); ok {
		l.LogInferenceCall(name, tokens, attempts, dur, err == nil, err)
		return
	}
	if err != nil {
		g.opts.Logger.Warn("inference call failed", "model", name, "attempts", attempts, "error", err)
		return
	}
	g.opts.Logger.Debug("inference call completed", "model", name, "attempts", attempts, "tokens", tokens)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
