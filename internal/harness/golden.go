package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/realmsync/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string                   `json:"scenario_name"`
	Initial      map[string][]ir.EntityID `json:"initial"`
	Trace        []TraceEvent             `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"step": event.Step,
		}
		optional := map[string]string{
			"action":    event.Action,
			"query":     event.Query,
			"entity":    event.Entity,
			"component": event.Component,
			"kind":      event.Kind,
			"override":  event.Override,
			"error":     event.Error,
		}
		for k, v := range optional {
			if v != "" {
				eventMap[k] = v
			}
		}
		if event.Seq != 0 {
			eventMap["seq"] = event.Seq
		}
		traceList[i] = eventMap
	}

	initial := make(map[string]any, len(s.Initial))
	for name, ids := range s.Initial {
		list := make([]any, len(ids))
		for i, id := range ids {
			list[i] = string(id)
		}
		initial[name] = list
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"initial":       initial,
		"trace":         traceList,
	}
}

// Snapshot renders a result as canonical JSON for golden comparison.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		Initial:      result.Initial,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return nil
}
