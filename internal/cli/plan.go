package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/entity"
	"github.com/roach88/strata/internal/filter"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
)

// Plan is a YAML list of reconcile and delete steps applied in one session
// and committed together.
//
//	steps:
//	  - kind: Person
//	    where: 'email LIKE[c] "ann@example.com"'
//	    create: true
//	    update: true
//	    set:
//	      email: ann@example.com
//	      name: Ann
//	    set_on_create:
//	      source: import
//	  - kind: Session
//	    where: 'expired == true'
//	    delete: true
type Plan struct {
	Steps []Step `yaml:"steps"`
}

// Step is one plan entry.
type Step struct {
	Kind string `yaml:"kind"`
	// Where selects existing records. Empty matches every record of Kind.
	Where  string `yaml:"where,omitempty"`
	Create bool   `yaml:"create,omitempty"`
	Update bool   `yaml:"update,omitempty"`
	Delete bool   `yaml:"delete,omitempty"`
	// RejectIf discards a new record when any record of Kind matches it.
	RejectIf string `yaml:"reject_if,omitempty"`
	// Set is applied to every affected record; null removes an attribute.
	Set map[string]any `yaml:"set,omitempty"`
	// SetOnCreate is applied after Set, only to a record this step creates.
	SetOnCreate map[string]any `yaml:"set_on_create,omitempty"`

	where        queryir.Predicate
	rejectIf     queryir.Predicate
	values       ir.IRObject
	createValues ir.IRObject
}

// ParsePlan decodes and validates a plan. Unknown keys are errors.
func ParsePlan(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var plan Plan
	if err := dec.Decode(&plan); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("plan is empty")
		}
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	for i := range plan.Steps {
		if err := plan.Steps[i].compile(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &plan, nil
}

// LoadPlan reads and parses the plan at path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePlan(data)
}

func (s *Step) compile() error {
	if !queryir.ValidField(s.Kind) {
		return fmt.Errorf("invalid kind %q", s.Kind)
	}

	if s.Delete {
		if s.Create || s.Update || s.RejectIf != "" || len(s.Set) > 0 || len(s.SetOnCreate) > 0 {
			return fmt.Errorf("delete cannot be combined with create, update, reject_if or set")
		}
		if s.Where == "" {
			return fmt.Errorf("delete requires where")
		}
	}

	var err error
	if s.Where != "" {
		if s.where, err = filter.ParseClause(s.Where); err != nil {
			return fmt.Errorf("where: %w", err)
		}
	}
	if s.RejectIf != "" {
		if !s.Create {
			return fmt.Errorf("reject_if requires create")
		}
		if s.rejectIf, err = filter.ParseClause(s.RejectIf); err != nil {
			return fmt.Errorf("reject_if: %w", err)
		}
	}

	if len(s.SetOnCreate) > 0 && !s.Create {
		return fmt.Errorf("set_on_create requires create")
	}

	if s.values, err = compileValues("set", s.Set); err != nil {
		return err
	}
	s.createValues, err = compileValues("set_on_create", s.SetOnCreate)
	return err
}

func compileValues(key string, raw map[string]any) (ir.IRObject, error) {
	values := make(ir.IRObject, len(raw))
	for field, rv := range raw {
		if !queryir.ValidField(field) {
			return nil, fmt.Errorf("%s: invalid attribute name %q", key, field)
		}
		v, err := ir.FromAny(rv)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", key, field, err)
		}
		switch v.(type) {
		case ir.IRArray, ir.IRObject:
			return nil, fmt.Errorf("%s %s: attributes must be scalar", key, field)
		}
		values[field] = v
	}
	return values, nil
}

// Query selects the records the step applies to.
func (s *Step) Query() queryir.Query {
	return queryir.Query{Entity: s.Kind, Filter: s.where}
}

// Values returns the compiled attribute assignments.
func (s *Step) Values() ir.IRObject {
	return s.values.Clone()
}

// spec builds the reconcile spec. Set failures are recorded in *setErr
// because Modify cannot return an error.
func (s *Step) spec(setErr *error) entity.Spec {
	spec := entity.Spec{
		Kind:         s.Kind,
		ShouldCreate: s.Create,
		ShouldUpdate: s.Update,
		Query:        s.Query(),
		Modify: func(_ context.Context, rec *record.Record, st entity.Storage) {
			assign(rec, s.values, setErr)
			if st.IsPendingInsert(rec) {
				assign(rec, s.createValues, setErr)
			}
		},
	}
	if s.rejectIf != nil {
		spec.Prevalidate = func(ctx context.Context, _ *record.Record, st entity.Storage) bool {
			res := st.Fetch(ctx, queryir.Query{Entity: s.Kind, Filter: s.rejectIf})
			return len(res.Records) == 0
		}
	}
	return spec
}

func assign(rec *record.Record, values ir.IRObject, setErr *error) {
	for _, field := range values.SortedKeys() {
		if err := rec.Set(field, values[field]); err != nil && *setErr == nil {
			*setErr = fmt.Errorf("%s %s: %w", rec.Entity(), rec.ID(), err)
		}
	}
}
