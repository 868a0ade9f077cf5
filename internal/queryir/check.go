package queryir

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/strata/internal/ir"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidField reports whether name can be used as an attribute name.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// QueryError describes why a query cannot be executed.
type QueryError struct {
	Field   string
	Message string
}

func (e *QueryError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid query: %s", e.Message)
	}
	return fmt.Sprintf("invalid query: field %q: %s", e.Field, e.Message)
}

// IsQueryError reports whether err is or wraps a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// Check returns an error for queries no backend can execute: missing entity,
// malformed attribute names, composite literals, unknown operators, invalid
// regular expressions, or negative paging.
//
// Unlike Validate, which only warns, Check failures are hard errors. Every
// backend calls Check before executing a query.
func Check(q Query) error {
	if q.Entity == "" {
		return &QueryError{Message: "entity is required"}
	}
	if q.Limit < 0 {
		return &QueryError{Message: fmt.Sprintf("negative limit %d", q.Limit)}
	}
	if q.Offset < 0 {
		return &QueryError{Message: fmt.Sprintf("negative offset %d", q.Offset)}
	}
	if q.BatchSize < 0 {
		return &QueryError{Message: fmt.Sprintf("negative batch size %d", q.BatchSize)}
	}
	for _, key := range q.Sort {
		if !ValidField(key.Field) {
			return &QueryError{Field: key.Field, Message: "invalid sort attribute"}
		}
	}
	return checkPredicate(q.Filter)
}

func checkPredicate(p Predicate) error {
	switch pred := p.(type) {
	case nil, True:
		return nil
	case Equals:
		if !ValidField(pred.Field) {
			return &QueryError{Field: pred.Field, Message: "invalid attribute name"}
		}
		return checkScalar(pred.Field, pred.Value)
	case In:
		if !ValidField(pred.Field) {
			return &QueryError{Field: pred.Field, Message: "invalid attribute name"}
		}
		for _, v := range pred.Values {
			if err := checkScalar(pred.Field, v); err != nil {
				return err
			}
		}
		return nil
	case StringMatch:
		if !ValidField(pred.Field) {
			return &QueryError{Field: pred.Field, Message: "invalid attribute name"}
		}
		if !pred.Op.Valid() {
			return &QueryError{Field: pred.Field, Message: fmt.Sprintf("unknown operator %q", pred.Op)}
		}
		if pred.Op == Matches {
			if _, err := CompilePattern(pred.Value, pred.Options); err != nil {
				return &QueryError{Field: pred.Field, Message: err.Error()}
			}
		}
		return nil
	case And:
		return checkAll(pred.Predicates)
	case Or:
		return checkAll(pred.Predicates)
	case Not:
		if pred.Predicate == nil {
			return &QueryError{Message: "NOT requires a predicate"}
		}
		return checkPredicate(pred.Predicate)
	default:
		return &QueryError{Message: fmt.Sprintf("unknown predicate type %T", p)}
	}
}

func checkAll(preds []Predicate) error {
	for _, child := range preds {
		if err := checkPredicate(child); err != nil {
			return err
		}
	}
	return nil
}

func checkScalar(field string, v ir.IRValue) error {
	switch v.(type) {
	case nil, ir.IRNull, ir.IRString, ir.IRInt, ir.IRBool:
		return nil
	default:
		return &QueryError{Field: field, Message: fmt.Sprintf("unsupported literal type %T", v)}
	}
}
