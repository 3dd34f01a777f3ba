package graph

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/saathi/core"
)

// Registry maps agent names to agents. Leaves resolve their agent here at
// execution time.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
}

// NewRegistry returns a registry holding agents.
func NewRegistry(agents ...core.Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]core.Agent, len(agents))}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an agent. An invalid spec or a duplicate name is fatal.
func (r *Registry) Register(a core.Agent) error {
	spec := a.Spec()
	if err := spec.Validate(); err != nil {
		return core.Fatal("register agent", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.agents[spec.Name]; dup {
		return core.Fatal("register agent", fmt.Errorf("%w: %s", core.ErrDuplicateAgent, spec.Name))
	}
	r.agents[spec.Name] = a
	return nil
}

// Get resolves an agent. An unknown name is fatal.
func (r *Registry) Get(name string) (core.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, core.Fatal("resolve agent", fmt.Errorf("%w: %s", core.ErrUnregisteredAgent, name))
	}
	return a, nil
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.agents))
}

// Check validates root and verifies every leaf references a registered agent.
func (r *Registry) Check(root Node) error {
	if err := Validate(root); err != nil {
		return err
	}
	for _, name := range Leaves(root) {
		if _, err := r.Get(name); err != nil {
			return err
		}
	}
	return nil
}
