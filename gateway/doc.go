// Package gateway wraps a model.Model with the reliability policy every
// reasoning call goes through: a hard per-attempt timeout, bounded retries
// with exponential backoff on transient failure, optional rate limiting and
// output validation.
//
// Validation failures are never retried here. They surface as
// *core.InvalidOutputError carrying the raw text, leaving the decision to the
// caller (typically a graph Loop).
package gateway
