package observe

import (
	"context"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/logging"
)

// LogObserver writes events to a structured logger. Node entries and retries
// log at debug, failures at warn and run boundaries at info.
type LogObserver struct {
	logger logging.Logger
}

var _ core.Observer = (*LogObserver)(nil)

// NewLogObserver returns an observer logging through l.
func NewLogObserver(l logging.Logger) *LogObserver {
	return &LogObserver{logger: logging.OrNoOp(l)}
}

// Observe implements core.Observer.
func (o *LogObserver) Observe(_ context.Context, ev core.Event) {
	args := []any{"kind", string(ev.Kind)}
	if ev.RunID != "" {
		args = append(args, "run_id", ev.RunID)
	}
	if ev.NodePath != "" {
		args = append(args, "path", ev.NodePath)
	}
	if ev.Status != core.StatusPending {
		args = append(args, "status", ev.Status.String())
	}
	if ev.Duration > 0 {
		args = append(args, "duration", ev.Duration)
	}
	if ev.Attempt > 0 {
		args = append(args, "attempt", ev.Attempt)
	}
	for k, v := range ev.Attrs {
		args = append(args, k, v)
	}
	if ev.Err != "" {
		args = append(args, "error", ev.Err)
	}

	switch {
	case ev.Err != "" || ev.Status == core.StatusFailed:
		o.logger.Warn("saathi event", args...)
	case ev.Kind == core.EventRunStarted || ev.Kind == core.EventRunFinished:
		o.logger.Info("saathi event", args...)
	default:
		o.logger.Debug("saathi event", args...)
	}
}
