package queryir

import (
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// ValidationResult contains portability analysis of a query.
//
// The portable fragment is the subset of queries any predicate-capable store
// can execute natively. Queries outside it still run on every strata
// backend, but the SQLite backends need the strata_match function and a
// third-party store would need equivalent support.
type ValidationResult struct {
	// IsPortable indicates if the query uses only portable fragment features.
	IsPortable bool

	// Warnings lists non-portable features used in the query.
	// Empty when IsPortable is true.
	Warnings []string
}

// Validate checks if a query conforms to the portable fragment rules.
//
// Portable fragment rules:
//  1. No NULL comparisons - missing attributes are matched implicitly
//  2. No regular expressions - MATCHES needs regex support in the store
//  3. No diacritic folding - needs Unicode normalization in the store
//  4. Sorting only on attributes a store could index
//
// Validate is a pure function with no side effects. Use Check for hard
// errors.
func Validate(q Query) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validatePredicate(q.Filter)
	for _, key := range q.Sort {
		v.addWarning("Sort on attribute '%s' - attribute sorts are evaluated per record, not index-backed", key.Field)
	}

	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil, True:
		return
	case Equals:
		if ir.IsNull(pred.Value) {
			v.addWarning("Field '%s' compared to NULL - matches missing attributes", pred.Field)
		}
	case In:
		for _, member := range pred.Values {
			if ir.IsNull(member) {
				v.addWarning("Field '%s' membership includes NULL - matches missing attributes", pred.Field)
				break
			}
		}
	case StringMatch:
		if pred.Op == Matches {
			v.addWarning("Field '%s' uses MATCHES - requires regular expression support", pred.Field)
		}
		if pred.Options.Has(DiacriticInsensitive) {
			v.addWarning("Field '%s' uses diacritic-insensitive matching - requires Unicode normalization support", pred.Field)
		}
	case And:
		for _, child := range pred.Predicates {
			v.validatePredicate(child)
		}
	case Or:
		for _, child := range pred.Predicates {
			v.validatePredicate(child)
		}
	case Not:
		v.validatePredicate(pred.Predicate)
	default:
		v.addWarning("Unknown predicate type: %T - portability cannot be verified", p)
	}
}
