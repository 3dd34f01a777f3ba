package graph

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/saathi/core"
)

// Predicates resolves the stop predicate names used in graph definitions.
type Predicates map[string]StopPredicate

// Always accepts every output; a loop using it runs its body once.
func Always(core.Output) bool { return true }

// nodeDoc is the YAML form of a node.
//
//	kind: loop
//	name: support
//	max_iterations: 3
//	stop: tone_ok
//	body:
//	  kind: leaf
//	  agent: emotional
type nodeDoc struct {
	Kind          Kind      `yaml:"kind"`
	Name          string    `yaml:"name,omitempty"`
	Agent         string    `yaml:"agent,omitempty"`
	Steps         []nodeDoc `yaml:"steps,omitempty"`
	BestEffort    bool      `yaml:"best_effort,omitempty"`
	Branches      []nodeDoc `yaml:"branches,omitempty"`
	Quorum        int       `yaml:"quorum,omitempty"`
	AllOrNothing  bool      `yaml:"all_or_nothing,omitempty"`
	Workers       int       `yaml:"workers,omitempty"`
	Body          *nodeDoc  `yaml:"body,omitempty"`
	MaxIterations int       `yaml:"max_iterations,omitempty"`
	Stop          string    `yaml:"stop,omitempty"`
}

// graphsDoc is a file declaring one graph per capability.
type graphsDoc struct {
	Graphs map[core.Capability]nodeDoc `yaml:"graphs"`
}

// Decode parses a single node definition. Unknown fields, unknown kinds and
// unknown predicates are fatal, as is any tree Validate rejects.
func Decode(data []byte, preds Predicates) (Node, error) {
	var doc nodeDoc
	if err := strictUnmarshal(data, &doc); err != nil {
		return nil, err
	}
	n, err := doc.build(preds)
	if err != nil {
		return nil, err
	}
	if err := Validate(n); err != nil {
		return nil, err
	}
	return n, nil
}

// DecodeGraphs parses a document of the form
//
//	graphs:
//	  emotional-support: {kind: leaf, agent: emotional}
//	  study-planning: ...
func DecodeGraphs(data []byte, preds Predicates) (map[core.Capability]Node, error) {
	var doc graphsDoc
	if err := strictUnmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Graphs) == 0 {
		return nil, malformed("document declares no graphs")
	}
	out := make(map[core.Capability]Node, len(doc.Graphs))
	for _, capability := range slices.Sorted(maps.Keys(doc.Graphs)) {
		nd := doc.Graphs[capability]
		n, err := nd.build(preds)
		if err != nil {
			return nil, fmt.Errorf("graph %s: %w", capability, err)
		}
		if err := Validate(n); err != nil {
			return nil, fmt.Errorf("graph %s: %w", capability, err)
		}
		out[capability] = n
	}
	return out, nil
}

// Encode renders a tree back to YAML. Stop predicates are written by name.
func Encode(n Node) ([]byte, error) {
	doc, err := toDoc(n)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func strictUnmarshal(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return malformed("empty document")
		}
		return malformed("%v", err)
	}
	return nil
}

func (d nodeDoc) build(preds Predicates) (Node, error) {
	switch d.Kind {
	case KindLeaf:
		return &Leaf{Agent: d.Agent, Label: d.Name}, nil
	case KindSequential:
		steps, err := buildAll(d.Steps, preds)
		if err != nil {
			return nil, err
		}
		return &Sequential{Label: d.Name, Steps: steps, BestEffort: d.BestEffort}, nil
	case KindParallel:
		branches, err := buildAll(d.Branches, preds)
		if err != nil {
			return nil, err
		}
		return &Parallel{Label: d.Name, Branches: branches, Quorum: d.Quorum, AllOrNothing: d.AllOrNothing, Workers: d.Workers}, nil
	case KindLoop:
		if d.Body == nil {
			return nil, malformed("loop %q has no body", d.Name)
		}
		body, err := d.Body.build(preds)
		if err != nil {
			return nil, err
		}
		stop, ok := preds[d.Stop]
		if !ok {
			return nil, malformed("loop %q: unknown stop predicate %q", d.Name, d.Stop)
		}
		return &Loop{Label: d.Name, Body: body, MaxIterations: d.MaxIterations, Stop: stop, StopName: d.Stop}, nil
	default:
		return nil, malformed("unknown node kind %q", d.Kind)
	}
}

func buildAll(docs []nodeDoc, preds Predicates) ([]Node, error) {
	out := make([]Node, 0, len(docs))
	for _, d := range docs {
		n, err := d.build(preds)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func toDoc(n Node) (nodeDoc, error) {
	switch t := n.(type) {
	case *Leaf:
		return nodeDoc{Kind: KindLeaf, Name: t.Label, Agent: t.Agent}, nil
	case *Sequential:
		steps, err := toDocs(t.Steps)
		return nodeDoc{Kind: KindSequential, Name: t.Label, Steps: steps, BestEffort: t.BestEffort}, err
	case *Parallel:
		branches, err := toDocs(t.Branches)
		return nodeDoc{Kind: KindParallel, Name: t.Label, Branches: branches, Quorum: t.Quorum, AllOrNothing: t.AllOrNothing, Workers: t.Workers}, err
	case *Loop:
		if t.StopName == "" {
			return nodeDoc{}, malformed("loop %q: stop predicate has no name", t.Name())
		}
		body, err := toDoc(t.Body)
		if err != nil {
			return nodeDoc{}, err
		}
		return nodeDoc{Kind: KindLoop, Name: t.Label, Body: &body, MaxIterations: t.MaxIterations, Stop: t.StopName}, nil
	default:
		return nodeDoc{}, malformed("unknown node type %T", n)
	}
}

func toDocs(nodes []Node) ([]nodeDoc, error) {
	out := make([]nodeDoc, 0, len(nodes))
	for _, n := range nodes {
		d, err := toDoc(n)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
