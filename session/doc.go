// Package session houses concrete implementations of the core.SessionStore.
// The interface itself (and the Session struct) live in the core package to
// centralize domain contracts. Keeping only implementations here prevents
// higher level packages (graph, orchestrator) from depending on concrete
// storage.
//
// Sessions expire after an idle timeout. An expired session is reported as
// core.ErrSessionNotFound and its scratch keys stop pinning memory records.
// The redis sub-package provides a shared, TTL based backend.
package session
