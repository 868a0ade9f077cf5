package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/persist"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// Empty fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		eventMap := map[string]any{
			"step": ev.Step,
			"op":   ev.Op,
		}
		if ev.Kind != "" {
			eventMap["kind"] = ev.Kind
		}
		if ev.Outcome != "" {
			eventMap["outcome"] = ev.Outcome
		}
		if len(ev.Affected) > 0 {
			eventMap["affected"] = stringsToAny(ev.Affected)
		}
		if ev.Op == OpFetch {
			eventMap["records"] = stringsToAny(ev.Records)
		}
		if ev.Degraded {
			eventMap["degraded"] = true
		}
		if ev.Error != "" {
			eventMap["error"] = ev.Error
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Every backend must produce the same trace, so one golden file serves the
// whole backend matrix.
func RunWithGolden(t *testing.T, scenario *Scenario, backend persist.Backend) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, backend)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}

	traceJSON, err := ir.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
