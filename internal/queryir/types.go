package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Query is an immutable description of a fetch against one entity kind.
//
// The zero Filter (nil) matches every record of Entity.
// Limit == 0 means unlimited. BatchSize is a fetch hint; it never changes
// the result set.
type Query struct {
	Entity    string
	Filter    Predicate
	Sort      []SortKey
	Limit     int
	Offset    int
	BatchSize int
}

// SortKey orders results by one attribute.
type SortKey struct {
	Field      string
	Descending bool
}

// Predicate represents a filter condition over record attributes.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Equals matches records whose attribute equals Value.
//
// Null-safe: Value == ir.IRNull{} matches records where the attribute is
// null or missing.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In matches records whose attribute is a member of Values.
// An ir.IRNull{} member matches null or missing attributes.
// Empty Values never match.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// StringMatch applies a string operator to a text attribute.
// Non-string attributes never match.
type StringMatch struct {
	Field   string
	Op      StringOp
	Value   string
	Options StringOptions
}

func (StringMatch) predicateNode() {}

// And is true when every child is true (empty = true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is true when any child is true (empty = false).
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates its child.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// True always matches. It is the base of a request that has only exclusions.
type True struct{}

func (True) predicateNode() {}

// WithFilter returns a copy of q with Filter replaced.
func (q Query) WithFilter(p Predicate) Query {
	q.Sort = cloneSort(q.Sort)
	q.Filter = p
	return q
}

// Clone returns a copy of q that shares no slices with it.
func (q Query) Clone() Query {
	q.Sort = cloneSort(q.Sort)
	return q
}

func cloneSort(keys []SortKey) []SortKey {
	if keys == nil {
		return nil
	}
	out := make([]SortKey, len(keys))
	copy(out, keys)
	return out
}

// String renders the query for logs, e.g.
//
//	Person WHERE name BEGINSWITH[c] "a" SORT BY age DESC LIMIT 10
func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Entity)
	if q.Filter != nil {
		b.WriteString(" WHERE ")
		b.WriteString(Render(q.Filter))
	}
	if len(q.Sort) > 0 {
		b.WriteString(" SORT BY ")
		for i, key := range q.Sort {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(key.Field)
			if key.Descending {
				b.WriteString(" DESC")
			}
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}
	return b.String()
}

// Fingerprint returns a stable hash of the query, used to correlate log lines.
// BatchSize is excluded because it never changes results.
func (q Query) Fingerprint() string {
	sortKeys := make(ir.IRArray, len(q.Sort))
	for i, key := range q.Sort {
		dir := "asc"
		if key.Descending {
			dir = "desc"
		}
		sortKeys[i] = ir.IRString(key.Field + " " + dir)
	}
	filter := "TRUEPREDICATE"
	if q.Filter != nil {
		filter = Render(Normalize(q.Filter))
	}
	fp, err := ir.Fingerprint(ir.DomainQuery, ir.IRObject{
		"entity": ir.IRString(q.Entity),
		"filter": ir.IRString(filter),
		"sort":   sortKeys,
		"limit":  ir.IRInt(q.Limit),
		"offset": ir.IRInt(q.Offset),
	})
	if err != nil {
		// Only strings and ints above; canonical encoding cannot fail.
		return ""
	}
	return fp
}
