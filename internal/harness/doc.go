// Package harness provides conformance testing for entity reconciliation.
//
// A scenario seeds a store, runs reconcile, fetch and delete steps through
// one session, and asserts on the trace and on the committed state. The
// same scenario runs unchanged against every persist.Backend; the backends
// must agree on every trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: |
//	  entity: Person: { email: string, name?: string }
//	setup:
//	  - kind: Person
//	    id: p1
//	    attrs: { email: ann@example.com }
//	steps:
//	  - op: reconcile
//	    kind: Person
//	    where: 'email == "ann@example.com"'
//	    create: true
//	    update: true
//	    set: { name: Ann }
//	    expect: { outcome: updated, affected: [p1] }
//	  - op: fetch
//	    kind: Person
//	    sort: [-name]
//	    expect: { records: [p1] }
//	  - op: commit
//	assertions:
//	  - type: record_state
//	    kind: Person
//	    id: p1
//	    expect: { name: Ann }
//
// # Assertion Types
//
//   - trace_contains: a step with the given op (and kind, outcome) ran
//   - trace_count: such a step ran exactly count times
//   - record_count: count committed records of kind match where
//   - record_state: a committed record has the expected attributes
//
// Assertions about records read the backend directly, so uncommitted
// changes are invisible to them.
//
// # Deterministic Testing
//
// Records created during a scenario get IDs "new-1", "new-2", ... from
// testutil.SequentialIDs, so traces are identical across runs and across
// backends and can be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/upsert.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario, memstore.New("conformance"))
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
