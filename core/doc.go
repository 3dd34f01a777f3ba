// Package core provides the foundational domain types and contracts shared by
// every saathi package. It defines:
//
//   - Sessions (per-user conversational containers with turns and scratch state)
//   - Memory records, categories, deltas and the read-only MemoryView agents see
//   - Agents, AgentSpecs and the run-scoped Channel they exchange messages on
//   - Run statuses and the run state machine
//   - Observability events and the Observer sink contract
//   - The error taxonomy (transient, validation, capacity, fatal)
//
// The package intentionally keeps implementation concerns (storage, graph
// execution, concrete agents) out of scope, exposing small interfaces so
// backends can be swapped without touching orchestration code.
package core
