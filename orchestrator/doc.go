// Package orchestrator answers user turns. For each turn it loads or creates
// the session, resolves the composition graph registered for the requested
// capability, executes it against a memory snapshot and a run-scoped A2A bus,
// and on success commits the root delta to the memory store, applies the
// scratch delta and appends the turn to the session.
//
// A turn either commits everything its graph produced or nothing: Failed,
// cancelled and fatal runs leave memory and the session untouched.
package orchestrator
