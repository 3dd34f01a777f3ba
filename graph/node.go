package graph

import (
	"fmt"

	"github.com/hupe1980/saathi/core"
)

// Kind names a composition node type.
type Kind string

const (
	KindLeaf       Kind = "leaf"
	KindSequential Kind = "sequential"
	KindParallel   Kind = "parallel"
	KindLoop       Kind = "loop"
)

// StopPredicate decides whether a loop accepts an iteration's output.
type StopPredicate func(out core.Output) bool

// Node is a composition graph node. The concrete types are *Leaf,
// *Sequential, *Parallel and *Loop.
type Node interface {
	Kind() Kind
	// Name is the node's path segment. Siblings must have distinct names.
	Name() string
	Children() []Node
	validate() error
}

// Leaf runs one registered agent once.
type Leaf struct {
	Agent string
	// Label overrides the path segment, which defaults to the agent name.
	Label string
}

// Kind implements Node.
func (*Leaf) Kind() Kind { return KindLeaf }

// Name implements Node.
func (n *Leaf) Name() string {
	if n.Label != "" {
		return n.Label
	}
	return n.Agent
}

// Children implements Node.
func (*Leaf) Children() []Node { return nil }

func (n *Leaf) validate() error {
	if n.Agent == "" {
		return malformed("leaf without agent")
	}
	return nil
}

// Sequential runs its steps in order; each step sees the deltas of the steps
// before it. A failed step fails the node unless BestEffort is set, in which
// case the failure is recorded, its delta dropped and the node ends
// PartiallyFailed.
type Sequential struct {
	Label      string
	Steps      []Node
	BestEffort bool
}

// Kind implements Node.
func (*Sequential) Kind() Kind { return KindSequential }

// Name implements Node.
func (n *Sequential) Name() string { return nameOr(n.Label, KindSequential) }

// Children implements Node.
func (n *Sequential) Children() []Node { return n.Steps }

func (n *Sequential) validate() error {
	if len(n.Steps) == 0 {
		return malformed("sequential %q has no steps", n.Name())
	}
	return uniqueNames(n.Name(), n.Steps)
}

// Parallel runs its branches concurrently against the memory snapshot taken
// at node entry.
type Parallel struct {
	Label    string
	Branches []Node
	// Quorum is the number of branches that must succeed. Zero means all.
	Quorum int
	// AllOrNothing fails the node when any branch fails, even with quorum.
	AllOrNothing bool
	// Workers bounds concurrency. Zero uses the executor default.
	Workers int
}

// Kind implements Node.
func (*Parallel) Kind() Kind { return KindParallel }

// Name implements Node.
func (n *Parallel) Name() string { return nameOr(n.Label, KindParallel) }

// Children implements Node.
func (n *Parallel) Children() []Node { return n.Branches }

func (n *Parallel) quorum() int {
	if n.Quorum == 0 {
		return len(n.Branches)
	}
	return n.Quorum
}

func (n *Parallel) validate() error {
	if len(n.Branches) == 0 {
		return malformed("parallel %q has no branches", n.Name())
	}
	if n.Quorum < 0 || n.Quorum > len(n.Branches) {
		return malformed("parallel %q: quorum %d outside [0, %d]", n.Name(), n.Quorum, len(n.Branches))
	}
	if n.Workers < 0 {
		return malformed("parallel %q: negative workers", n.Name())
	}
	return uniqueNames(n.Name(), n.Branches)
}

// Loop reruns Body until Stop accepts its output, MaxIterations is reached
// (Exhausted, output flagged low confidence) or the body fails.
type Loop struct {
	Label         string
	Body          Node
	MaxIterations int
	Stop          StopPredicate
	// StopName is the registered name of Stop, kept for diagnostics.
	StopName string
}

// Kind implements Node.
func (*Loop) Kind() Kind { return KindLoop }

// Name implements Node.
func (n *Loop) Name() string { return nameOr(n.Label, KindLoop) }

// Children implements Node.
func (n *Loop) Children() []Node {
	if n.Body == nil {
		return nil
	}
	return []Node{n.Body}
}

func (n *Loop) validate() error {
	if n.Body == nil {
		return malformed("loop %q has no body", n.Name())
	}
	if n.MaxIterations < 1 {
		return malformed("loop %q: max iterations must be >= 1", n.Name())
	}
	if n.Stop == nil {
		return malformed("loop %q has no stop predicate", n.Name())
	}
	return nil
}

// Validate checks the whole tree. Every violation is fatal.
func Validate(root Node) error {
	if isNil(root) {
		return malformed("nil node")
	}
	if err := root.validate(); err != nil {
		return err
	}
	for _, c := range root.Children() {
		if err := Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// Leaves returns the agent names referenced by the tree in depth-first order.
func Leaves(root Node) []string {
	if isNil(root) {
		return nil
	}
	if l, ok := root.(*Leaf); ok {
		return []string{l.Agent}
	}
	var out []string
	for _, c := range root.Children() {
		out = append(out, Leaves(c)...)
	}
	return out
}

func isNil(n Node) bool {
	switch t := n.(type) {
	case nil:
		return true
	case *Leaf:
		return t == nil
	case *Sequential:
		return t == nil
	case *Parallel:
		return t == nil
	case *Loop:
		return t == nil
	default:
		return false
	}
}

func uniqueNames(parent string, children []Node) error {
	seen := make(map[string]struct{}, len(children))
	for _, c := range children {
		if isNil(c) {
			return malformed("%s has a nil child", parent)
		}
		if _, dup := seen[c.Name()]; dup {
			return malformed("%s has two children named %q", parent, c.Name())
		}
		seen[c.Name()] = struct{}{}
	}
	return nil
}

func nameOr(label string, k Kind) string {
	if label != "" {
		return label
	}
	return string(k)
}

func malformed(format string, args ...any) error {
	return core.Fatal("graph", fmt.Errorf("%w: "+format, append([]any{core.ErrMalformedNode}, args...)...))
}
