package filter

import (
	"reflect"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
)

// Scalar is the set of Go types an attribute can hold.
type Scalar interface {
	~string | ~bool | ~int | ~int8 | ~int16 | ~int32 | ~int64
}

// FieldRef names an attribute holding values of type T.
type FieldRef[T Scalar] struct {
	name string
}

// Field refers to the attribute name with values of type T.
func Field[T Scalar](name string) FieldRef[T] {
	return FieldRef[T]{name: name}
}

func (f FieldRef[T]) Name() string { return f.name }

// Equals matches records whose attribute equals v.
func (f FieldRef[T]) Equals(v T) queryir.Predicate {
	return queryir.Equals{Field: f.name, Value: toIR(v)}
}

// IsNil matches records where the attribute is null or missing.
func (f FieldRef[T]) IsNil() queryir.Predicate {
	return queryir.Equals{Field: f.name, Value: ir.IRNull{}}
}

// In matches records whose attribute is one of values.
// No values matches nothing.
func (f FieldRef[T]) In(values ...T) queryir.Predicate {
	irValues := make([]ir.IRValue, len(values))
	for i, v := range values {
		irValues[i] = toIR(v)
	}
	return queryir.In{Field: f.name, Values: irValues}
}

// InNullable is In for optional attributes; a nil entry matches records
// where the attribute is null or missing.
func (f FieldRef[T]) InNullable(values ...*T) queryir.Predicate {
	irValues := make([]ir.IRValue, len(values))
	for i, v := range values {
		if v == nil {
			irValues[i] = ir.IRNull{}
			continue
		}
		irValues[i] = toIR(*v)
	}
	return queryir.In{Field: f.name, Values: irValues}
}

func toIR[T Scalar](v T) ir.IRValue {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return ir.IRString(rv.String())
	case reflect.Bool:
		return ir.IRBool(rv.Bool())
	default:
		return ir.IRInt(rv.Int())
	}
}

// TextField names a string attribute for pattern matching.
type TextField struct {
	name string
}

// Text refers to the string attribute name.
func Text(name string) TextField {
	return TextField{name: name}
}

// Name returns the attribute name.
func (f TextField) Name() string { return f.name }

// Like matches the whole value against pattern, where '*' matches any run
// of characters and '?' exactly one.
func (f TextField) Like(pattern string, opts ...queryir.StringOptions) queryir.Predicate {
	return f.match(queryir.Like, pattern, opts)
}

// Contains matches values containing s.
func (f TextField) Contains(s string, opts ...queryir.StringOptions) queryir.Predicate {
	return f.match(queryir.Contains, s, opts)
}

// BeginsWith matches values starting with prefix.
func (f TextField) BeginsWith(prefix string, opts ...queryir.StringOptions) queryir.Predicate {
	return f.match(queryir.BeginsWith, prefix, opts)
}

// EndsWith matches values ending with suffix.
func (f TextField) EndsWith(suffix string, opts ...queryir.StringOptions) queryir.Predicate {
	return f.match(queryir.EndsWith, suffix, opts)
}

// Matches tests the whole value against a regular expression.
func (f TextField) Matches(expr string, opts ...queryir.StringOptions) queryir.Predicate {
	return f.match(queryir.Matches, expr, opts)
}

// Equals is exact string equality; use Like with options for folded
// comparisons.
func (f TextField) Equals(s string) queryir.Predicate {
	return queryir.Equals{Field: f.name, Value: ir.IRString(s)}
}

func (f TextField) match(op queryir.StringOp, value string, opts []queryir.StringOptions) queryir.Predicate {
	return queryir.StringMatch{
		Field:   f.name,
		Op:      op,
		Value:   value,
		Options: queryir.Combine(opts...),
	}
}
