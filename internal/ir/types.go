package ir

import "fmt"

// EntityID identifies one logical game object. Ids minted by the ledger are
// carried verbatim; ids derived from natural keys come from EntityIDFromKeys.
type EntityID string

// FieldType is the primitive type of one component field.
type FieldType string

// Supported field types. There is deliberately no float type.
const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldBool   FieldType = "bool"
	FieldArray  FieldType = "array"
	FieldObject FieldType = "object"
)

// ComponentSchema describes a named, schema-typed record that may be
// attached to any entity.
type ComponentSchema struct {
	Name string `json:"name"`
	// Keys lists the fields that form the entity's natural key, in hashing
	// order. Empty for components on ledger-minted entities.
	Keys   []string             `json:"keys,omitempty"`
	Fields map[string]FieldType `json:"fields"`
}

// UpdateKind classifies a presence transition of a component on an entity.
type UpdateKind int

const (
	// Enter: the component became present.
	Enter UpdateKind = iota + 1
	// Update: the component stayed present and its value changed.
	Update
	// Exit: the component was removed.
	Exit
)

// String implements fmt.Stringer.
func (k UpdateKind) String() string {
	switch k {
	case Enter:
		return "enter"
	case Update:
		return "update"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("UpdateKind(%d)", int(k))
	}
}

// KindOf derives the update kind for a transition from prev to next.
// Returns 0 when both are absent.
func KindOf(prev, next IRObject) UpdateKind {
	switch {
	case prev == nil && next == nil:
		return 0
	case prev == nil:
		return Enter
	case next == nil:
		return Exit
	default:
		return Update
	}
}

// UpdateEvent describes one logical transition of a (entity, component)
// slot as seen through the composed (canonical plus overrides) view.
type UpdateEvent struct {
	Entity    EntityID   `json:"entity"`
	Component string     `json:"component"`
	Previous  IRObject   `json:"previous,omitempty"`
	Value     IRObject   `json:"value,omitempty"`
	Kind      UpdateKind `json:"kind"`
	// Override is the override id responsible for a synthetic event, empty
	// for canonical writes.
	Override string `json:"override,omitempty"`
}
