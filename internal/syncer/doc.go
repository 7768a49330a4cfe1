// Package syncer keeps the canonical store in step with the ledger indexer.
//
// The pipeline is push-then-pull: the push channel only names an entity and
// the components that changed, and the pipeline pulls their current values
// before writing them into the store. It is the only writer of canonical
// state and never touches overrides.
//
// Ordering:
// Every notification is stamped from a logical clock when it is read.
// Pulls run concurrently (bounded by Config.FetchConcurrency) and may
// resolve in any order. For each (entity, component) slot the stamp of the
// last applied result is kept; a result carrying an older stamp is
// discarded, so out-of-order resolution never regresses canonical state.
//
// Failure:
// Pulls are retried with exponential backoff. When retries are exhausted
// the entity is marked stale, the notification is dropped, and the drop is
// logged. The next successful pull for the entity clears the marker.
//
// Teardown:
// Close flips the liveness flag and cancels the run; cancelling Run's
// context flips it as soon as the read loop stops. Pulls that resolve
// after teardown are dropped before anything is written, and a pull cut
// short by cancellation never marks its entity stale.
package syncer
