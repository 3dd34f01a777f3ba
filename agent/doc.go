// Package agent contains the four domain agents (emotional support, study
// planning, community and social) plus the plumbing they share.
//
// The package focuses on three concerns:
//
//  1. Shared identity, prompt templates and error policy (BaseAgent)
//  2. The concrete agents, which differ only in declared inputs and outputs,
//     prompt building and validation
//  3. Text checks used both as gateway validators and as loop stop
//     predicates (ValidateTone, ValidateClarity, ToneOK, ClarityOK)
//
// Execution model:
//   - Run receives a session copy whose last turn is the one being answered,
//     a read-only memory view and a run-scoped A2A channel
//   - Memory writes are staged in the returned core.Delta and publishes are
//     staged in the channel; the graph executor commits both only when Run
//     returns without error
//   - Tool and transient gateway failures degrade the output instead of
//     failing; cancellation and fatal errors are returned
//
// Agents hold no per-run state and may be run repeatedly, as loop nodes do.
package agent
