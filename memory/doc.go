// Package memory contains the long-term memory store. Records are addressed by
// (session, category, natural key) and live in a single budgeted bank.
//
// Writes that would push the bank over its budget run a synchronous,
// deterministic compaction first: records are scored by importance times an
// exponential recency decay and the lowest scores are evicted until the bank
// drops to the target fill ratio. Records pinned by an open session's scratch
// map and the K most important records are never evicted, and a single pass
// never removes more than half of the bank. When those floors make the target
// unreachable the write is rejected with core.ErrCapacityExceeded and the bank
// is left untouched.
//
// The store is process local. Attach a Journal (see memory/sqlite) to make it
// durable; Restore reloads the journal on start up.
package memory
