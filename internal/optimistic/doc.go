// Package optimistic wraps outgoing mutating calls with speculative
// overrides.
//
// A wrapped call runs in three steps:
//  1. Generate a fresh override id and apply every predicted effect as an
//     override under it.
//  2. Invoke the real call and wait for it.
//  3. Remove every override carrying the id, whatever the outcome:
//     success, error, or panic.
//
// The wrapper never looks at the call's result. After cleanup the composed
// view shows canonical state as it is at that moment; if the ledger
// accepted the call but the indexer has not yet pushed the outcome, the
// view briefly reverts to the pre-call state until the sync pipeline
// writes the truth. This gap is known and deliberately left in place: the
// removal is unconditional and there is no re-application of a pre-call
// value on failure.
package optimistic
