// Package graph composes agents into execution graphs and runs them.
//
// A graph is a tree of four node kinds:
//
//   - Leaf runs one registered agent once
//   - Sequential runs steps in order, each seeing the deltas of the previous
//     ones
//   - Parallel runs branches on a bounded errgroup against the snapshot
//     taken at node entry, subject to a quorum
//   - Loop reruns its body until a stop predicate accepts the output or the
//     iteration bound is reached
//
// Every node returns a tagged Outcome (Succeeded, PartiallyFailed, Failed or
// Exhausted) together with the delta it proposes to commit. Nothing is
// written to the memory store here: the orchestrator commits the root delta
// once the run is answered. A2A messages are different: an agent's staged
// publishes reach the run's bus as soon as that agent succeeds, so later
// nodes can read them.
//
// Fatal errors (unregistered agent, malformed node, undeclared write) and
// cancellation abort the whole run and are returned as errors.
//
// Graphs can be declared in YAML with Decode / DecodeGraphs.
package graph
