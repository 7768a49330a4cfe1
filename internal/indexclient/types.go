package indexclient

import (
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

// Notification is one push message: an entity and the names of its
// components that changed.
type Notification struct {
	EntityID ir.EntityID `json:"entity_id"`
	Changed  []string    `json:"changed_components"`
}

// EntitySnapshot carries current component values for one entity.
// A requested component missing from Components is absent on the ledger.
type EntitySnapshot struct {
	EntityID   ir.EntityID            `json:"entity_id"`
	Components map[string]ir.IRObject `json:"components"`
}

// ResyncRequest is the body of POST /v1/resync. An empty fragment list
// returns every entity.
type ResyncRequest struct {
	Fragments []queryir.Spec `json:"fragments,omitempty"`
}

// ResyncResponse is the reply to a resync.
type ResyncResponse struct {
	Entities []EntitySnapshot `json:"entities"`
}

// ApplyRequest is the body of POST /v1/entities/{id} on the devnet
// indexer. A null component value deletes the component.
type ApplyRequest struct {
	Components map[string]ir.IRObject `json:"components"`
}

// ApplyResponse reports the ledger seq assigned to an apply.
type ApplyResponse struct {
	Seq int64 `json:"seq"`
}

// ErrorResponse is the JSON error body returned by the service.
type ErrorResponse struct {
	Error string `json:"error"`
}
