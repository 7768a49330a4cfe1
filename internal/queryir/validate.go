package queryir

import (
	"fmt"

	"github.com/roach88/realmsync/internal/ir"
)

// Problem codes. A chain with any Problem cannot be registered.
const (
	CodeEmptyQuery           = "EMPTY_QUERY"
	CodeInvalidFirstFragment = "INVALID_FIRST_FRAGMENT"
	CodeNilFragment          = "NIL_FRAGMENT"
	CodeMissingComponent     = "MISSING_COMPONENT"
	CodeMissingField         = "MISSING_FIELD"
	CodeInvalidDepth         = "INVALID_DEPTH"
	CodeUnknownFragment      = "UNKNOWN_FRAGMENT"
	CodeNestedExpand         = "NESTED_EXPAND"
)

// Problem is one construction error in a chain.
// Index is the position in the top-level chain; nested ProxyRead problems
// report the index of the enclosing fragment.
type Problem struct {
	Code    string
	Index   int
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("[%s] fragment %d: %s", p.Code, p.Index, p.Message)
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	// Problems make the chain ill-formed. Empty when the chain is valid.
	Problems []Problem

	// Warnings flag legal but suspicious constructions, such as a
	// HasValue with an empty value.
	Warnings []string
}

// OK reports whether the chain has no problems.
func (r ValidationResult) OK() bool {
	return len(r.Problems) == 0
}

// Validate checks a chain's construction rules:
//  1. The chain is non-empty.
//  2. The first fragment is Has or HasValue.
//  3. Every fragment names its components and reference fields.
//  4. Proxy depths lie in [0, MaxDepth].
//  5. ProxyRead match chains filter single entities, so they may not
//     contain ProxyExpand.
//
// Validate is a pure function with no side effects.
func Validate(chain []Fragment) ValidationResult {
	v := &validator{}
	if len(chain) == 0 {
		v.addProblem(CodeEmptyQuery, 0, "query has no fragments")
		return v.result()
	}

	switch Deref(chain[0]).(type) {
	case Has, HasValue:
	default:
		v.addProblem(CodeInvalidFirstFragment, 0,
			"first fragment must be Has or HasValue, got %s", Name(chain[0]))
	}

	v.validateChain(chain, -1)
	return v.result()
}

// validator accumulates problems and warnings during traversal.
type validator struct {
	problems []Problem
	warnings []string
}

func (v *validator) addProblem(code string, index int, format string, args ...any) {
	v.problems = append(v.problems, Problem{Code: code, Index: index, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) result() ValidationResult {
	return ValidationResult{Problems: v.problems, Warnings: v.warnings}
}

// validateChain checks each fragment. outer is the enclosing top-level
// index for nested chains, or -1 at the top level.
func (v *validator) validateChain(chain []Fragment, outer int) {
	for i, f := range chain {
		idx := i
		if outer >= 0 {
			idx = outer
		}
		v.validateFragment(f, idx, outer >= 0)
	}
}

func (v *validator) validateFragment(f Fragment, idx int, nested bool) {
	switch frag := Deref(f).(type) {
	case nil:
		v.addProblem(CodeNilFragment, idx, "nil fragment")
	case Has:
		v.requireComponent(frag.Component, idx)
	case HasValue:
		v.requireComponent(frag.Component, idx)
		v.checkValue("HasValue", frag.Component, frag.Value)
	case Not:
		v.requireComponent(frag.Component, idx)
	case NotValue:
		v.requireComponent(frag.Component, idx)
		v.checkValue("NotValue", frag.Component, frag.Value)
	case ProxyRead:
		v.requireComponent(frag.Via, idx)
		v.requireField(frag.Field, "Field", idx)
		v.checkDepth(frag.Depth, idx)
		if len(frag.Match) == 0 {
			v.addWarning("ProxyRead via %s.%s has no match fragments and only tests reachability", frag.Via, frag.Field)
		}
		v.validateChain(frag.Match, idx)
	case ProxyExpand:
		if nested {
			v.addProblem(CodeNestedExpand, idx, "ProxyExpand cannot appear inside ProxyRead match")
		}
		v.requireComponent(frag.Via, idx)
		v.requireField(frag.Field, "Field", idx)
		v.checkDepth(frag.Depth, idx)
	case Covers:
		v.requireComponent(frag.Component, idx)
		v.requireComponent(frag.Entry, idx)
		v.requireField(frag.Holder, "Holder", idx)
		v.requireField(frag.Items, "Items", idx)
	default:
		v.addProblem(CodeUnknownFragment, idx, "unknown fragment type %T", f)
	}
}

func (v *validator) requireComponent(name string, idx int) {
	if name == "" {
		v.addProblem(CodeMissingComponent, idx, "component name is empty")
	}
}

func (v *validator) requireField(name, what string, idx int) {
	if name == "" {
		v.addProblem(CodeMissingField, idx, "%s is empty", what)
	}
}

func (v *validator) checkDepth(d, idx int) {
	if d < 0 || d > MaxDepth {
		v.addProblem(CodeInvalidDepth, idx, "depth %d outside [0, %d]", d, MaxDepth)
	}
}

func (v *validator) checkValue(kind, component string, value ir.IRObject) {
	if len(value) == 0 {
		v.addWarning("%s on %s with empty value behaves like %s", kind, component, plainOf(kind))
	}
	for _, k := range value.SortedKeys() {
		if _, isNull := value[k].(ir.IRNull); isNull {
			v.addWarning("%s on %s compares field %q to null, which never matches a stored value", kind, component, k)
		}
	}
}

func plainOf(kind string) string {
	if kind == "HasValue" {
		return "Has"
	}
	return "Not"
}

// Name returns the fragment's variant name, for messages.
func Name(f Fragment) string {
	switch Deref(f).(type) {
	case Has:
		return "Has"
	case HasValue:
		return "HasValue"
	case Not:
		return "Not"
	case NotValue:
		return "NotValue"
	case ProxyRead:
		return "ProxyRead"
	case ProxyExpand:
		return "ProxyExpand"
	case Covers:
		return "Covers"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", f)
	}
}
