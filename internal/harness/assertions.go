package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/filter"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
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
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s %v\n", ev.Step, ev.Op, ev.Kind, ev.Outcome, ev.Affected)
		}
	}
	return buf.String()
}

func (h *Harness) evaluate(ctx context.Context, trace []TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertRecordCount:
		return h.assertRecordCount(ctx, a)
	case AssertRecordState:
		return h.assertRecordState(ctx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func matchesEvent(ev TraceEvent, a Assertion) bool {
	if ev.Op != a.Op {
		return false
	}
	if a.Kind != "" && ev.Kind != a.Kind {
		return false
	}
	return a.Outcome == "" || ev.Outcome == a.Outcome
}

// assertTraceContains checks that some step matches the op, kind and
// outcome of the assertion.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matchesEvent(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s %s %s", a.Op, a.Kind, a.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count steps match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matchesEvent(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s %s %s appears %d time(s)", a.Op, a.Kind, a.Outcome, a.Count),
			Actual:   fmt.Sprintf("appears %d time(s)", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertRecordCount counts committed records, bypassing the session.
func (h *Harness) assertRecordCount(ctx context.Context, a Assertion) error {
	req := filter.New(a.Kind)
	if a.Where != "" {
		p, err := filter.ParseClause(a.Where)
		if err != nil {
			return fmt.Errorf("where: %w", err)
		}
		req = req.SuchThat(p)
	}
	snaps, err := h.backend.Fetch(ctx, req.Query())
	if err != nil {
		return err
	}
	if len(snaps) != a.Count {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%d %s record(s) matching %q", a.Count, a.Kind, a.Where),
			Actual:   fmt.Sprintf("%d record(s)", len(snaps)),
		}
	}
	return nil
}

// assertRecordState checks a committed record's attributes (subset match).
func (h *Harness) assertRecordState(ctx context.Context, a Assertion) error {
	snaps, err := h.backend.Fetch(ctx, queryir.Query{Entity: a.Kind})
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		if snap.ID != a.ID {
			continue
		}
		for field, raw := range a.Expect {
			want, err := ir.FromAny(raw)
			if err != nil {
				return fmt.Errorf("expect %s: %w", field, err)
			}
			got, ok := snap.Attrs[field]
			if !ok {
				got = ir.IRNull{}
			}
			if !ir.Equal(got, want) {
				return &AssertionError{
					Type:     AssertRecordState,
					Expected: fmt.Sprintf("%s %s.%s = %s", a.Kind, a.ID, field, queryir.RenderValue(want)),
					Actual:   queryir.RenderValue(got),
				}
			}
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertRecordState,
		Expected: fmt.Sprintf("committed %s record %s", a.Kind, a.ID),
		Actual:   "not found",
	}
}
