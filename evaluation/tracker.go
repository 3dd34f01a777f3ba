package evaluation

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/saathi/core"
)

// Trend describes the direction of the latest sample.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Metric names recorded by the tracker's observer.
const (
	MetricLatencyMS = "latency_ms"
	MetricFailures  = "failures"
)

// Sample is one tracked value.
type Sample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Summary condenses the history of one metric.
type Summary struct {
	Current float64 `json:"current"`
	// Average covers the last Window samples.
	Average float64 `json:"average"`
	Trend   Trend   `json:"trend"`
	Samples int     `json:"samples"`
}

// Report is the performance summary of one agent.
type Report struct {
	Agent   string             `json:"agent"`
	Metrics map[string]Summary `json:"metrics"`
}

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	// Window is the number of recent samples averaged. Default 10.
	Window int
	// Retain caps the stored history per metric. Default 100.
	Retain int
	Clock  func() time.Time
}

// Tracker records metric samples per agent. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	opts    TrackerOptions
	samples map[string]map[string][]Sample
}

// NewTracker returns an empty tracker.
func NewTracker(optFns ...func(o *TrackerOptions)) *Tracker {
	opts := TrackerOptions{Window: 10, Retain: 100, Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Window = max(opts.Window, 1)
	opts.Retain = max(opts.Retain, opts.Window)
	return &Tracker{opts: opts, samples: map[string]map[string][]Sample{}}
}

// Track appends a sample.
func (t *Tracker) Track(agent, metric string, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byMetric, ok := t.samples[agent]
	if !ok {
		byMetric = map[string][]Sample{}
		t.samples[agent] = byMetric
	}
	history := append(byMetric[metric], Sample{Value: value, At: t.opts.Clock().UTC()})
	if len(history) > t.opts.Retain {
		history = slices.Clone(history[len(history)-t.opts.Retain:])
	}
	byMetric[metric] = history
}

// Report summarizes every metric of agent. The boolean is false when nothing
// was tracked for it.
func (t *Tracker) Report(agent string) (Report, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byMetric, ok := t.samples[agent]
	if !ok {
		return Report{}, false
	}
	r := Report{Agent: agent, Metrics: make(map[string]Summary, len(byMetric))}
	for metric, history := range byMetric {
		r.Metrics[metric] = t.summarize(history)
	}
	return r, true
}

// Agents returns the tracked agent names, sorted.
func (t *Tracker) Agents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Sorted(maps.Keys(t.samples))
}

func (t *Tracker) summarize(history []Sample) Summary {
	recent := history[max(len(history)-t.opts.Window, 0):]
	var sum float64
	for _, s := range recent {
		sum += s.Value
	}
	s := Summary{
		Current: history[len(history)-1].Value,
		Average: sum / float64(len(recent)),
		Trend:   TrendStable,
		Samples: len(history),
	}
	if n := len(history); n > 1 {
		switch prev := history[n-2].Value; {
		case s.Current > prev:
			s.Trend = TrendImproving
		case s.Current < prev:
			s.Trend = TrendDeclining
		}
	}
	return s
}

// Observer returns an observer tracking leaf latency and failures from node
// exit events. The agent is the last segment of the node path.
func (t *Tracker) Observer() core.Observer {
	return core.ObserverFunc(func(_ context.Context, ev core.Event) {
		if ev.Kind != core.EventNodeExited || ev.Attrs["kind"] != "leaf" {
			return
		}
		agent := ev.NodePath[strings.LastIndexByte(ev.NodePath, '/')+1:]
		t.Track(agent, MetricLatencyMS, float64(ev.Duration.Milliseconds()))
		failed := 0.0
		if ev.Status == core.StatusFailed {
			failed = 1
		}
		t.Track(agent, MetricFailures, failed)
	})
}
