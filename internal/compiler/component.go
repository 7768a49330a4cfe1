package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/realmsync/internal/ir"
)

// CompileComponent parses a CUE value into a ComponentSchema.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the component struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`component: Balance: { ... }`)
//	schema, err := CompileComponent(v.LookupPath(cue.ParsePath("component.Balance")))
func CompileComponent(v cue.Value) (*ir.ComponentSchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := &ir.ComponentSchema{Fields: make(map[string]ir.FieldType)}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		schema.Name = labels[len(labels)-1].String()
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		ft, err := extractFieldType(iter.Value())
		if err != nil {
			return nil, err
		}
		schema.Fields[iter.Label()] = ft
	}
	if len(schema.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     fieldsVal.Pos(),
		}
	}

	keysVal := v.LookupPath(cue.ParsePath("keys"))
	if keysVal.Exists() {
		keys, err := keysVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for keys.Next() {
			k, err := keys.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   "keys",
					Message: "keys must be field names",
					Pos:     keys.Value().Pos(),
				}
			}
			schema.Keys = append(schema.Keys, k)
		}
	}

	return schema, nil
}

// extractFieldType converts a CUE kind to a field type.
// Floats are forbidden; ledger values are integers.
func extractFieldType(v cue.Value) (ir.FieldType, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.FieldString, nil
	case cue.IntKind:
		return ir.FieldInt, nil
	case cue.BoolKind:
		return ir.FieldBool, nil
	case cue.ListKind:
		return ir.FieldArray, nil
	case cue.StructKind:
		return ir.FieldObject, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
