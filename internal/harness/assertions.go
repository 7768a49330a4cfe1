package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == EventQuery {
				fmt.Fprintf(&buf, "  [%d] %s %s %s via %s\n", i+1, event.Query, event.Kind, event.Entity, event.Component)
			} else {
				fmt.Fprintf(&buf, "  [%d] step %d %s %s\n", i+1, event.Step, event.Action, event.Entity)
			}
		}
	}

	return buf.String()
}

// assertMatchingSet checks a query's live set after the last step.
func assertMatchingSet(result *Result, a Assertion) error {
	want := make([]ir.EntityID, 0, len(a.Entities))
	for _, ref := range a.Entities {
		want = append(want, ref.ID)
	}
	slices.Sort(want)
	got := result.Matching[a.Query]
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertMatchingSet,
		Expected: fmt.Sprintf("query %s matches %v", a.Query, want),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

// assertEventCount counts a query's events, optionally of one kind.
func assertEventCount(result *Result, a Assertion) error {
	var kind ir.UpdateKind
	if a.Kind != "" {
		k, err := parseKind(a.Kind)
		if err != nil {
			return err
		}
		kind = k
	}
	count := 0
	for _, ev := range result.Events[a.Query] {
		if kind == 0 || ev.Kind == kind {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	what := "events"
	if a.Kind != "" {
		what = a.Kind + " events"
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("query %s emits %d %s", a.Query, a.Count, what),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    result.Trace,
	}
}

// assertReadValue compares a composed (or canonical) value exactly. A
// missing expected value asserts the component is absent.
func assertReadValue(st *store.Store, a Assertion) error {
	var got ir.IRObject
	if a.Canonical {
		got = st.ReadCanonical(a.Entity.ID, a.Component)
	} else {
		got = st.Read(a.Entity.ID, a.Component)
	}
	if ir.Equal(got, a.Value) {
		return nil
	}
	layer := "composed"
	if a.Canonical {
		layer = "canonical"
	}
	return &AssertionError{
		Type:     AssertReadValue,
		Expected: fmt.Sprintf("%s %s/%s = %s", layer, a.Entity.ID, a.Component, describe(a.Value)),
		Actual:   describe(got),
	}
}

func assertOverrideCount(result *Result, a Assertion) error {
	if len(result.Overrides) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertOverrideCount,
		Expected: fmt.Sprintf("%d live override ids", a.Count),
		Actual:   fmt.Sprintf("%d %v", len(result.Overrides), result.Overrides),
	}
}

func describe(v ir.IRObject) string {
	if v == nil {
		return "absent"
	}
	return ir.String(v)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for read_value assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertMatchingSet:
			err = assertMatchingSet(result, assertion)
		case AssertEventCount:
			err = assertEventCount(result, assertion)
		case AssertOverrideCount:
			err = assertOverrideCount(result, assertion)
		case AssertReadValue:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: read_value requires store context", i)
			} else {
				err = assertReadValue(actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
