package ir

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML implements yaml.Unmarshaler so component values can be
// written inline in scenario, seed and query files. Floats are rejected.
func (obj *IRObject) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	o, err := ObjectFromAny(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*obj = o
	return nil
}

// MarshalYAML implements yaml.Marshaler with native YAML scalars.
func (obj IRObject) MarshalYAML() (any, error) {
	if obj == nil {
		return nil, nil
	}
	return toAny(obj), nil
}

// ToAny converts an IRValue to plain Go values (string, int64, bool,
// []any, map[string]any). IRNull and nil become nil.
func ToAny(v IRValue) any {
	return toAny(v)
}

func toAny(v IRValue) any {
	switch val := v.(type) {
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = toAny(elem)
		}
		return out
	case IRObject:
		if val == nil {
			return nil
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = toAny(elem)
		}
		return out
	default:
		return nil
	}
}
