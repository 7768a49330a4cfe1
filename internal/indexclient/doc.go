// Package indexclient talks to the ledger indexing service.
//
// The service exposes two halves of one synchronization contract:
//
//   - a websocket push channel that announces which components of which
//     entity changed, without values;
//   - an HTTP pull API that returns current component values for one
//     entity, and a resync endpoint that returns everything at once.
//
// Every push message is validated against an embedded JSON schema before
// it is decoded.
package indexclient
