package tool

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry looks tools up by name. A missing tool is not an error at call
// time: Invoke reports it as a degraded Result.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tools))
}

// Invoke resolves name and calls it fail-soft. A nil registry behaves like an
// empty one.
func (r *Registry) Invoke(ctx context.Context, name, op string, args map[string]any, optFns ...func(o *InvokeOptions)) Result {
	t, ok := r.Get(name)
	if !ok {
		return Result{Err: fmt.Errorf("%s: %w", name, ErrToolUnavailable)}
	}
	return Invoke(ctx, t, op, args, optFns...)
}
