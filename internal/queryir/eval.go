package queryir

import (
	"slices"

	"github.com/roach88/strata/internal/ir"
)

// Eval evaluates p against a record's attributes.
//
// A nil predicate matches everything. A missing attribute is null.
func Eval(p Predicate, attrs ir.IRObject) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case True:
		return true
	case Equals:
		return ir.Equal(lookup(attrs, pred.Field), pred.Value)
	case In:
		v := lookup(attrs, pred.Field)
		for _, member := range pred.Values {
			if ir.Equal(v, member) {
				return true
			}
		}
		return false
	case StringMatch:
		s, ok := attrs[pred.Field].(ir.IRString)
		if !ok {
			return false
		}
		return MatchString(pred.Op, pred.Options, string(s), pred.Value)
	case And:
		for _, child := range pred.Predicates {
			if !Eval(child, attrs) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range pred.Predicates {
			if Eval(child, attrs) {
				return true
			}
		}
		return false
	case Not:
		return !Eval(pred.Predicate, attrs)
	default:
		return false
	}
}

func lookup(attrs ir.IRObject, field string) ir.IRValue {
	v, ok := attrs[field]
	if !ok {
		return ir.IRNull{}
	}
	return v
}

// SortRecords orders items by keys, breaking ties with tiebreak.
// The order is identical to the ORDER BY emitted by querysql.
func SortRecords[T any](items []T, keys []SortKey, attrs func(T) ir.IRObject, tiebreak func(a, b T) int) {
	slices.SortStableFunc(items, func(a, b T) int {
		aa, ba := attrs(a), attrs(b)
		for _, key := range keys {
			c := ir.Compare(lookup(aa, key.Field), lookup(ba, key.Field))
			if key.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		if tiebreak == nil {
			return 0
		}
		return tiebreak(a, b)
	})
}

// Page applies offset then limit. Limit 0 means unlimited.
// The result is always non-nil.
func Page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
