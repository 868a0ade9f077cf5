package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/entity"
	"github.com/roach88/strata/internal/filter"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/record"
	"github.com/roach88/strata/internal/schema"
	"github.com/roach88/strata/internal/session"
	"github.com/roach88/strata/internal/testutil"
)

// NewIDPrefix prefixes the IDs of records created during a scenario:
// the first is "new-1".
const NewIDPrefix = "new"

// Harness is the test execution engine.
// It runs scenarios with deterministic record IDs.
type Harness struct {
	backend persist.Backend
	sess    *session.Session
	entity  *entity.Entity
	ids     *testutil.SequentialIDs
	logger  *zap.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes session and entity logs to l.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a test scenario against backend and returns the result.
//
// The backend should be empty; setup records are written to it directly.
// Execution flow:
//  1. Compile the inline schema, if any
//  2. Write setup records
//  3. Execute steps in one session, checking expect clauses
//  4. Evaluate assertions against the trace and the committed state
//
// A returned error means the scenario could not run; expectation failures
// are reported on the Result.
func Run(ctx context.Context, scenario *Scenario, backend persist.Backend, opts ...Option) (*Result, error) {
	h := &Harness{
		backend: backend,
		ids:     testutil.NewSequentialIDs(NewIDPrefix),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	sessOpts := []session.Option{
		session.WithIDGenerator(h.ids),
		session.WithLogger(h.logger),
	}
	if scenario.Schema != "" {
		sch, err := schema.Compile(scenario.Schema)
		if err != nil {
			return nil, fmt.Errorf("scenario schema: %w", err)
		}
		sessOpts = append(sessOpts, session.WithSchema(sch))
	}
	h.sess = session.New(backend, sessOpts...)
	h.entity = entity.New(h.sess)

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, err
	}

	result := NewResult()
	for i := range scenario.Steps {
		ev, err := h.executeStep(ctx, i+1, &scenario.Steps[i])
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.AddTrace(ev)
		checkExpect(result, ev, scenario.Steps[i].Expect)
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, result.Trace, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	h.logger.Debug("scenario finished",
		zap.String("scenario", scenario.Name),
		zap.String("store", backend.Identifier()),
		zap.Bool("pass", result.Pass))
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, seeds []Seed) error {
	if len(seeds) == 0 {
		return nil
	}
	changes := record.ChangeSet{}
	for i, seed := range seeds {
		attrs, err := toObject(seed.Attrs)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		changes.Inserts = append(changes.Inserts, record.Snapshot{ID: seed.ID, Entity: seed.Kind, Attrs: attrs})
	}
	if err := h.backend.Apply(ctx, changes); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, n int, st *Step) (TraceEvent, error) {
	ev := TraceEvent{Step: n, Op: st.Op, Kind: st.Kind}

	switch st.Op {
	case OpCommit:
		if err := h.sess.Save(ctx); err != nil {
			ev.Error = err.Error()
		}
		return ev, nil
	case OpRollback:
		h.sess.Rollback()
		return ev, nil
	}

	req, err := stepRequest(st)
	if err != nil {
		return ev, err
	}

	switch st.Op {
	case OpFetch:
		res := h.entity.Fetch(ctx, req.Query())
		ev.Records = recordIDs(res.Records)
		ev.Degraded = res.Degraded != nil
		return ev, nil
	case OpDelete:
		return fromUpdate(ev, h.entity.Delete(ctx, req.Query())), nil
	}

	spec, setErr, err := reconcileSpec(st, req)
	if err != nil {
		return ev, err
	}
	update := h.entity.Reconcile(ctx, spec)
	if *setErr != nil {
		return ev, *setErr
	}
	if update.Err != nil {
		ev.Error = update.Err.Error()
	}
	return fromUpdate(ev, update), nil
}

func stepRequest(st *Step) (filter.Request, error) {
	req := filter.New(st.Kind)
	if st.Where != "" {
		p, err := filter.ParseClause(st.Where)
		if err != nil {
			return filter.Request{}, fmt.Errorf("where: %w", err)
		}
		req = req.SuchThat(p)
	}
	for _, key := range st.Sort {
		if name, ok := strings.CutPrefix(key, "-"); ok {
			req = req.SortByDescending(name)
		} else {
			req = req.SortBy(key)
		}
	}
	return req.Limit(st.Limit).Offset(st.Offset), nil
}

func reconcileSpec(st *Step, req filter.Request) (entity.Spec, *error, error) {
	values, err := toObject(st.Set)
	if err != nil {
		return entity.Spec{}, nil, fmt.Errorf("set: %w", err)
	}

	setErr := new(error)
	spec := entity.Spec{
		Kind:         st.Kind,
		ShouldCreate: st.Create,
		ShouldUpdate: st.Update,
		Query:        req.Query(),
		Modify: func(_ context.Context, rec *record.Record, _ entity.Storage) {
			for _, field := range values.SortedKeys() {
				if err := rec.Set(field, values[field]); err != nil && *setErr == nil {
					*setErr = fmt.Errorf("set %s: %w", field, err)
				}
			}
		},
	}

	if st.RejectIf != "" {
		p, err := filter.ParseClause(st.RejectIf)
		if err != nil {
			return entity.Spec{}, nil, fmt.Errorf("reject_if: %w", err)
		}
		q := filter.New(st.Kind).SuchThat(p).Query()
		spec.Prevalidate = func(ctx context.Context, _ *record.Record, s entity.Storage) bool {
			return len(s.Fetch(ctx, q).Records) == 0
		}
	}
	return spec, setErr, nil
}

func fromUpdate(ev TraceEvent, u entity.Update) TraceEvent {
	ev.Outcome = u.Outcome.String()
	ev.Affected = recordIDs(u.Affected)
	ev.Degraded = u.Degraded != nil
	return ev
}

// checkExpect compares a step's event with its expect clause. A commit
// without an expected error must succeed.
func checkExpect(result *Result, ev TraceEvent, exp *Expect) {
	prefix := fmt.Sprintf("step %d (%s)", ev.Step, ev.Op)
	if exp == nil {
		if ev.Error != "" {
			result.AddError(fmt.Sprintf("%s: unexpected error: %s", prefix, ev.Error))
		}
		return
	}

	if exp.Outcome != "" && exp.Outcome != ev.Outcome {
		result.AddError(fmt.Sprintf("%s: outcome = %s, want %s", prefix, ev.Outcome, exp.Outcome))
	}
	if exp.Affected != nil && !slices.Equal(exp.Affected, ev.Affected) {
		result.AddError(fmt.Sprintf("%s: affected = %v, want %v", prefix, ev.Affected, exp.Affected))
	}
	if exp.Records != nil && !slices.Equal(exp.Records, ev.Records) {
		result.AddError(fmt.Sprintf("%s: records = %v, want %v", prefix, ev.Records, exp.Records))
	}
	if exp.Degraded != nil && *exp.Degraded != ev.Degraded {
		result.AddError(fmt.Sprintf("%s: degraded = %t, want %t", prefix, ev.Degraded, *exp.Degraded))
	}
	switch {
	case exp.Error == "" && ev.Error != "":
		result.AddError(fmt.Sprintf("%s: unexpected error: %s", prefix, ev.Error))
	case exp.Error != "" && !strings.Contains(ev.Error, exp.Error):
		result.AddError(fmt.Sprintf("%s: error = %q, want it to contain %q", prefix, ev.Error, exp.Error))
	}
}

func recordIDs(recs []*record.Record) []string {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID())
	}
	return ids
}

func toObject(m map[string]any) (ir.IRObject, error) {
	obj := make(ir.IRObject, len(m))
	for k, raw := range m {
		v, err := ir.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		obj[k] = v
	}
	return obj, nil
}
