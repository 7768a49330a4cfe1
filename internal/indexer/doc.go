// Package indexer is a local stand-in for the ledger indexing service.
//
// It mirrors component state in SQLite and speaks the same protocol the
// client expects from the real service: a websocket push channel that
// names changed components, and an HTTP pull API that returns their
// values. realmsync devnet serves it, and end-to-end tests run the sync
// pipeline against it.
//
// Storage:
//   - components: current value per (entity_id, component) as canonical
//     JSON, with the seq of the apply that last wrote it
//   - applies: journal of applies; its rowid is the ledger seq
//
// Push messages are published after the apply's transaction commits, so a
// client pulling in response always sees the new values.
package indexer
