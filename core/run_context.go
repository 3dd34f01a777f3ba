package core

import "context"

// RunInfo is the per-run metadata carried on the context through the graph,
// the gateway and the memory store, so events raised anywhere in a run can be
// correlated without threading extra parameters.
type RunInfo struct {
	RunID      string
	SessionID  string
	Capability Capability
	// Budget caps the reasoning calls the run may make. Nil means unlimited.
	Budget *InferenceBudget
}

type runInfoKey struct{}

type nodePathKey struct{}

// WithRun attaches run metadata to ctx.
func WithRun(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunFromContext returns the run metadata attached to ctx.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}

// WithNodePath attaches the composition node path (for example
// "support/loop/emotional") to ctx.
func WithNodePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, nodePathKey{}, path)
}

// NodePathFromContext returns the node path attached to ctx, or "".
func NodePathFromContext(ctx context.Context) string {
	path, _ := ctx.Value(nodePathKey{}).(string)
	return path
}

// ChildPath joins a parent node path and a child segment.
func ChildPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "/" + child
}
