package compiler

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	// Component schema errors (E101-E109)
	ErrComponentName      = "E101" // name is not an identifier
	ErrComponentNoFields  = "E102" // at least one field required
	ErrKeyNotField        = "E103" // key names an undeclared field
	ErrKeyNotPrimitive    = "E104" // key field is an array or object
	ErrDuplicateKey       = "E105" // key listed twice
	ErrDuplicateComponent = "E106" // component declared twice

	// Query errors (E110-E119)
	ErrQueryMalformed    = "E110" // chain fails construction rules
	ErrUnknownComponent  = "E111" // fragment names an undeclared component
	ErrUnknownField      = "E112" // reference field missing from its component
	ErrValueMismatch     = "E113" // HasValue/NotValue value does not fit the schema
	ErrFieldTypeMismatch = "E114" // reference field has the wrong type
)

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateComponent checks a compiled schema. Returns all errors found.
func ValidateComponent(schema ir.ComponentSchema) []ValidationError {
	var errs []ValidationError
	prefix := "component." + schema.Name

	if !identPattern.MatchString(schema.Name) {
		errs = append(errs, ValidationError{
			Field:   prefix,
			Message: fmt.Sprintf("invalid component name %q", schema.Name),
			Code:    ErrComponentName,
		})
	}
	if len(schema.Fields) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".fields",
			Message: "at least one field is required",
			Code:    ErrComponentNoFields,
		})
	}

	seen := make(map[string]bool, len(schema.Keys))
	for i, k := range schema.Keys {
		field := fmt.Sprintf("%s.keys[%d]", prefix, i)
		if seen[k] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate key %q", k),
				Code:    ErrDuplicateKey,
			})
			continue
		}
		seen[k] = true

		ft, ok := schema.Fields[k]
		switch {
		case !ok:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("key %q is not a declared field", k),
				Code:    ErrKeyNotField,
			})
		case ft == ir.FieldArray || ft == ir.FieldObject:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("key %q has type %s; keys must be string, int or bool", k, ft),
				Code:    ErrKeyNotPrimitive,
			})
		}
	}
	return errs
}

// ValidateQuery checks a chain's construction rules and that every
// component and field it references is declared in schemas.
func ValidateQuery(q NamedQuery, schemas ir.Schemas) []ValidationError {
	prefix := "query." + q.Name

	res := queryir.Validate(q.Chain)
	if !res.OK() {
		errs := make([]ValidationError, 0, len(res.Problems))
		for _, p := range res.Problems {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", prefix, p.Index),
				Message: p.Message,
				Code:    ErrQueryMalformed,
			})
		}
		return errs
	}

	var errs []ValidationError
	reach := queryir.Reachable(q.Chain)
	names := make([]string, 0, len(reach))
	for n := range reach {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, ok := schemas[n]; !ok {
			errs = append(errs, ValidationError{
				Field:   prefix,
				Message: fmt.Sprintf("unknown component %q", n),
				Code:    ErrUnknownComponent,
			})
		}
	}
	if len(errs) > 0 {
		return errs
	}

	for i, f := range q.Chain {
		errs = append(errs, validateFragment(fmt.Sprintf("%s[%d]", prefix, i), f, schemas)...)
	}
	return errs
}

func validateFragment(field string, f queryir.Fragment, schemas ir.Schemas) []ValidationError {
	var errs []ValidationError
	checkValue := func(component string, value ir.IRObject) {
		if err := schemas[component].Validate(value); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: ErrValueMismatch})
		}
	}
	checkRef := func(component, name string, want ir.FieldType) {
		ft, ok := schemas[component].Fields[name]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("component %s has no field %q", component, name),
				Code:    ErrUnknownField,
			})
			return
		}
		if ft != want {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("field %s.%s is %s, want %s", component, name, ft, want),
				Code:    ErrFieldTypeMismatch,
			})
		}
	}

	switch frag := queryir.Deref(f).(type) {
	case queryir.HasValue:
		checkValue(frag.Component, frag.Value)
	case queryir.NotValue:
		checkValue(frag.Component, frag.Value)
	case queryir.ProxyRead:
		checkRef(frag.Via, frag.Field, ir.FieldString)
		for j, inner := range frag.Match {
			errs = append(errs, validateFragment(fmt.Sprintf("%s.match[%d]", field, j), inner, schemas)...)
		}
	case queryir.ProxyExpand:
		checkRef(frag.Via, frag.Field, ir.FieldString)
	case queryir.Covers:
		checkRef(frag.Component, frag.Holder, ir.FieldString)
		checkRef(frag.Component, frag.Items, ir.FieldArray)
	}
	return errs
}
