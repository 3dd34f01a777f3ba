package observe

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/saathi/core"
)

const instrumentationName = "github.com/hupe1980/saathi"

// OTelOptions configures an OTelObserver.
type OTelOptions struct {
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
}

// OTelObserver maps run and node events onto OpenTelemetry spans and
// metrics. A run span parents the spans of its nodes; a node span parents
// the spans of its children.
type OTelObserver struct {
	tracer trace.Tracer

	runs        metric.Int64Counter
	nodes       metric.Int64Counter
	nodeLatency metric.Float64Histogram
	retries     metric.Int64Counter
	compactions metric.Int64Counter

	mu    sync.Mutex
	spans map[spanKey]trace.Span
}

type spanKey struct {
	runID string
	path  string
}

var _ core.Observer = (*OTelObserver)(nil)

// NewOTelObserver creates the instruments and returns the observer.
func NewOTelObserver(optFns ...func(o *OTelOptions)) (*OTelObserver, error) {
	opts := OTelOptions{
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	o := &OTelObserver{
		tracer: opts.TracerProvider.Tracer(instrumentationName),
		spans:  make(map[spanKey]trace.Span),
	}

	var err error
	if o.runs, err = meter.Int64Counter("saathi.runs", metric.WithDescription("Finished runs by status")); err != nil {
		return nil, fmt.Errorf("observe: runs counter: %w", err)
	}
	if o.nodes, err = meter.Int64Counter("saathi.nodes", metric.WithDescription("Executed composition nodes by kind and status")); err != nil {
		return nil, fmt.Errorf("observe: nodes counter: %w", err)
	}
	if o.nodeLatency, err = meter.Float64Histogram("saathi.node.duration", metric.WithUnit("s"), metric.WithDescription("Composition node latency")); err != nil {
		return nil, fmt.Errorf("observe: node histogram: %w", err)
	}
	if o.retries, err = meter.Int64Counter("saathi.inference.retries", metric.WithDescription("Retried inference attempts")); err != nil {
		return nil, fmt.Errorf("observe: retries counter: %w", err)
	}
	if o.compactions, err = meter.Int64Counter("saathi.memory.compactions", metric.WithDescription("Memory compaction passes")); err != nil {
		return nil, fmt.Errorf("observe: compactions counter: %w", err)
	}
	return o, nil
}

// Observe implements core.Observer.
func (o *OTelObserver) Observe(ctx context.Context, ev core.Event) {
	switch ev.Kind {
	case core.EventRunStarted:
		o.start(ctx, spanKey{runID: ev.RunID}, "saathi.run", ev,
			attribute.String("saathi.run_id", ev.RunID),
			attribute.String("saathi.capability", fmt.Sprint(ev.Attrs["capability"])),
		)
	case core.EventRunFinished:
		o.end(spanKey{runID: ev.RunID}, ev)
		o.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", ev.Status.String())))
	case core.EventNodeEntered:
		o.start(ctx, spanKey{runID: ev.RunID, path: ev.NodePath}, "saathi.node", ev,
			attribute.String("saathi.node.path", ev.NodePath),
			attribute.String("saathi.node.kind", fmt.Sprint(ev.Attrs["kind"])),
		)
	case core.EventNodeExited:
		o.end(spanKey{runID: ev.RunID, path: ev.NodePath}, ev)
		attrs := metric.WithAttributes(
			attribute.String("kind", fmt.Sprint(ev.Attrs["kind"])),
			attribute.String("status", ev.Status.String()),
		)
		o.nodes.Add(ctx, 1, attrs)
		o.nodeLatency.Record(ctx, ev.Duration.Seconds(), attrs)
	case core.EventRetryAttempted:
		o.retries.Add(ctx, 1)
		if span, ok := o.nearest(spanKey{runID: ev.RunID, path: ev.NodePath}); ok {
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", ev.Attempt),
				attribute.String("error", ev.Err),
			))
		}
	case core.EventCompactionTriggered:
		status := "ok"
		if ev.Err != "" {
			status = "error"
		}
		o.compactions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// Open returns the number of spans not yet ended.
func (o *OTelObserver) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.spans)
}

func (o *OTelObserver) start(ctx context.Context, key spanKey, name string, ev core.Event, attrs ...attribute.KeyValue) {
	if parent, ok := o.parent(key); ok {
		ctx = trace.ContextWithSpan(ctx, parent)
	}
	_, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(ev.Time),
		trace.WithAttributes(attrs...),
	)
	o.mu.Lock()
	o.spans[key] = span
	o.mu.Unlock()
}

func (o *OTelObserver) end(key spanKey, ev core.Event) {
	o.mu.Lock()
	span, ok := o.spans[key]
	delete(o.spans, key)
	o.mu.Unlock()
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("saathi.status", ev.Status.String()))
	if ev.Err != "" || ev.Status == core.StatusFailed {
		span.SetStatus(codes.Error, ev.Err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(ev.Time))
}

// parent finds the closest open ancestor span of key, ending at the run
// span. Loop iteration segments have no span of their own and are skipped.
func (o *OTelObserver) parent(key spanKey) (trace.Span, bool) {
	if key.path == "" {
		return nil, false
	}
	return o.nearest(spanKey{runID: key.runID, path: parentPath(key.path)})
}

func (o *OTelObserver) nearest(key spanKey) (trace.Span, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		if span, ok := o.spans[key]; ok {
			return span, true
		}
		if key.path == "" {
			return nil, false
		}
		key.path = parentPath(key.path)
	}
}

func parentPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}
