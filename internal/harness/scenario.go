package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/queryir"
)

// Scenario defines a conformance test scenario.
// Scenarios seed a store, run reconcile, fetch and delete steps through one
// session, and assert on the resulting trace and committed state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is optional inline CUE. When set, the session checks queries
	// and records against it.
	Schema string `yaml:"schema,omitempty"`

	// Setup records are written straight to the backend before any step.
	Setup []Seed `yaml:"setup,omitempty"`

	// Steps run in order against a single session.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and committed state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Seed is a record present before the scenario starts.
type Seed struct {
	Kind  string         `yaml:"kind"`
	ID    string         `yaml:"id"`
	Attrs map[string]any `yaml:"attrs"`
}

// Step is one operation against the session.
type Step struct {
	// Op is reconcile, fetch, delete, commit or rollback.
	Op string `yaml:"op"`

	Kind     string         `yaml:"kind,omitempty"`
	Where    string         `yaml:"where,omitempty"`
	Create   bool           `yaml:"create,omitempty"`
	Update   bool           `yaml:"update,omitempty"`
	RejectIf string         `yaml:"reject_if,omitempty"`
	Set      map[string]any `yaml:"set,omitempty"`

	// Sort keys for fetch and delete; prefix with - for descending.
	Sort   []string `yaml:"sort,omitempty"`
	Limit  int      `yaml:"limit,omitempty"`
	Offset int      `yaml:"offset,omitempty"`

	// Expect is checked immediately after the step runs.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies what a step must produce. Unset fields are not checked.
type Expect struct {
	Outcome  string   `yaml:"outcome,omitempty"`
	Affected []string `yaml:"affected,omitempty"`
	// Records is the exact ID order a fetch must return.
	Records  []string `yaml:"records,omitempty"`
	Degraded *bool    `yaml:"degraded,omitempty"`
	// Error is a substring of the error a commit must fail with.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step with Op (and Outcome, if set) appears in the trace
	// - "trace_count": Op appears exactly Count times
	// - "record_count": Count committed records of Kind match Where
	// - "record_state": committed record ID has the Expect attributes
	Type string `yaml:"type"`

	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	Kind  string `yaml:"kind,omitempty"`
	Where string `yaml:"where,omitempty"`
	ID    string `yaml:"id,omitempty"`

	// Expect is a subset match; null means the attribute must be absent.
	Expect map[string]any `yaml:"expect,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// Step operations.
const (
	OpReconcile = "reconcile"
	OpFetch     = "fetch"
	OpDelete    = "delete"
	OpCommit    = "commit"
	OpRollback  = "rollback"
)

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertRecordCount   = "record_count"
	AssertRecordState   = "record_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, seed := range s.Setup {
		if !queryir.ValidField(seed.Kind) {
			return fmt.Errorf("setup[%d]: invalid kind %q", i, seed.Kind)
		}
		if seed.ID == "" {
			return fmt.Errorf("setup[%d]: id is required", i)
		}
		if seen[seed.ID] {
			return fmt.Errorf("setup[%d]: duplicate id %q", i, seed.ID)
		}
		seen[seed.ID] = true
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpReconcile:
		if !st.Create && !st.Update {
			return fmt.Errorf("steps[%d]: reconcile needs create or update", index)
		}
	case OpFetch, OpDelete:
	case OpCommit, OpRollback:
		return nil
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	if !queryir.ValidField(st.Kind) {
		return fmt.Errorf("steps[%d]: invalid kind %q", index, st.Kind)
	}
	if st.Op == OpDelete && st.Where == "" {
		return fmt.Errorf("steps[%d]: delete requires where", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertRecordCount:
		if !queryir.ValidField(a.Kind) {
			return fmt.Errorf("assertions[%d]: kind is required for record_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for record_count", index)
		}
	case AssertRecordState:
		if !queryir.ValidField(a.Kind) || a.ID == "" {
			return fmt.Errorf("assertions[%d]: kind and id are required for record_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for record_state", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
