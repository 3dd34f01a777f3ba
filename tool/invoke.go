package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/saathi/logging"
)

// DefaultTimeout bounds a tool call when no timeout is given.
const DefaultTimeout = 10 * time.Second

// Result is the fail-soft outcome of Invoke. Err is informational: callers
// degrade their output when it is set instead of failing.
type Result struct {
	Value    any
	Err      error
	Duration time.Duration
}

// Degraded reports whether the call failed.
func (r Result) Degraded() bool { return r.Err != nil }

// InvokeOptions configures a single Invoke.
type InvokeOptions struct {
	Timeout time.Duration
	Logger  logging.Logger
}

type toolLogger interface {
	LogToolCall(tool, op string, dur time.Duration, success bool, err error)
}

// Invoke calls op on t under a timeout. It never returns an error: a nil
// tool, a timeout, a tool error and a panic inside the tool all end up in
// Result.Err.
func Invoke(ctx context.Context, t Tool, op string, args map[string]any, optFns ...func(o *InvokeOptions)) (res Result) {
	opts := InvokeOptions{Timeout: DefaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	if t == nil {
		return Result{Err: fmt.Errorf("%s: %w", op, ErrToolUnavailable)}
	}

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if l, ok := logger.(toolLogger); ok {
			l.LogToolCall(t.Name(), op, res.Duration, res.Err == nil, res.Err)
		} else if res.Err != nil {
			logger.Warn("tool call failed", "tool", t.Name(), "op", op, "error", res.Err)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type reply struct {
		v   any
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: NewToolError(t.Name(), op, fmt.Sprintf("panic: %v", r), CodeExecution)}
			}
		}()
		v, err := t.Call(cctx, op, args)
		done <- reply{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{Err: &ToolError{Tool: t.Name(), Op: op, Message: "timed out", Code: CodeTimeout, Err: r.err}}
		}
		return Result{Value: r.v, Err: r.err}
	case <-cctx.Done():
		if ctx.Err() != nil {
			return Result{Err: ctx.Err()}
		}
		return Result{Err: &ToolError{Tool: t.Name(), Op: op, Message: fmt.Sprintf("timed out after %s", opts.Timeout), Code: CodeTimeout, Err: cctx.Err()}}
	}
}
