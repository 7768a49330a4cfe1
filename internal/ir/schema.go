package ir

import (
	"fmt"
	"sort"
)

// Schemas is a registry of component schemas keyed by component name.
type Schemas map[string]ComponentSchema

// NewSchemas builds a registry, rejecting duplicate names.
func NewSchemas(list ...ComponentSchema) (Schemas, error) {
	s := make(Schemas, len(list))
	for _, c := range list {
		if _, dup := s[c.Name]; dup {
			return nil, fmt.Errorf("duplicate component schema %q", c.Name)
		}
		s[c.Name] = c
	}
	return s, nil
}

// Names returns the registered component names in sorted order.
func (s Schemas) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidationError reports a value that does not fit its component schema.
type ValidationError struct {
	Component string
	Field     string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("component %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("component %s: field %s: %s", e.Component, e.Field, e.Message)
}

// Validate checks field names and primitive types of value against the
// schema. Missing fields are allowed (partial values arrive from overrides
// and partial snapshots); unknown fields and type mismatches are not.
func (c ComponentSchema) Validate(value IRObject) error {
	for _, name := range value.SortedKeys() {
		want, ok := c.Fields[name]
		if !ok {
			return &ValidationError{Component: c.Name, Field: name, Message: "unknown field"}
		}
		if got := TypeOf(value[name]); got != want {
			return &ValidationError{
				Component: c.Name,
				Field:     name,
				Message:   fmt.Sprintf("expected %s, got %s", want, got),
			}
		}
	}
	return nil
}

// TypeOf returns the FieldType of a value, or "null" for IRNull/nil.
func TypeOf(v IRValue) FieldType {
	switch v.(type) {
	case IRString:
		return FieldString
	case IRInt:
		return FieldInt
	case IRBool:
		return FieldBool
	case IRArray:
		return FieldArray
	case IRObject:
		return FieldObject
	default:
		return "null"
	}
}
