package optimistic

import "github.com/google/uuid"

// IDGenerator produces override ids. Ids must be unique among overrides
// that can be live at the same time.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 override ids, which keeps
// overrides in creation order when listed or logged.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
