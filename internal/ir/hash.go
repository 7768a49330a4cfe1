package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainEntity = "realmsync/entity/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator removes any ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntityIDFromKeys derives the entity id for a natural key tuple, e.g.
// (holder, resource kind) for a balance. Identical tuples always produce the
// same id. The full 256-bit digest is kept so distinct tuples do not share
// an id in practice.
func EntityIDFromKeys(keys ...IRValue) (EntityID, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("entity id: at least one key is required")
	}
	canonical, err := MarshalCanonical(IRArray(keys))
	if err != nil {
		return "", fmt.Errorf("entity id: %w", err)
	}
	return EntityID("0x" + hashWithDomain(DomainEntity, canonical)), nil
}

// MustEntityID is like EntityIDFromKeys but panics on error.
// Use only in tests or with keys known to be valid.
func MustEntityID(keys ...IRValue) EntityID {
	id, err := EntityIDFromKeys(keys...)
	if err != nil {
		panic(err)
	}
	return id
}

// EntityIDFromSchema derives an entity id from the key fields of a value,
// following the order declared in schema.Keys.
func EntityIDFromSchema(schema ComponentSchema, value IRObject) (EntityID, error) {
	if len(schema.Keys) == 0 {
		return "", fmt.Errorf("entity id: component %s declares no keys", schema.Name)
	}
	keys := make([]IRValue, 0, len(schema.Keys))
	for _, k := range schema.Keys {
		v, ok := value[k]
		if !ok {
			return "", fmt.Errorf("entity id: component %s: missing key field %q", schema.Name, k)
		}
		keys = append(keys, v)
	}
	return EntityIDFromKeys(keys...)
}
