package queryir

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Render produces the textual form of a predicate, for logs and the CLI.
//
//	name CONTAINS[cd] "ann"
//	age IN {1, 2, nil}
//	NOT (email == nil)
//
// Rendering is one-way at the query boundary; backends consume the tree.
func Render(p Predicate) string {
	var b strings.Builder
	render(&b, p)
	return b.String()
}

func render(b *strings.Builder, p Predicate) {
	switch pred := p.(type) {
	case nil, True:
		b.WriteString("TRUEPREDICATE")
	case Equals:
		b.WriteString(pred.Field)
		b.WriteString(" == ")
		b.WriteString(RenderValue(pred.Value))
	case In:
		b.WriteString(pred.Field)
		b.WriteString(" IN {")
		for i, v := range pred.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(RenderValue(v))
		}
		b.WriteString("}")
	case StringMatch:
		b.WriteString(pred.Field)
		b.WriteString(" ")
		b.WriteString(string(pred.Op))
		b.WriteString(pred.Options.String())
		b.WriteString(" ")
		b.WriteString(strconv.Quote(pred.Value))
	case And:
		renderJunction(b, "AND", "TRUEPREDICATE", pred.Predicates)
	case Or:
		renderJunction(b, "OR", "FALSEPREDICATE", pred.Predicates)
	case Not:
		b.WriteString("NOT (")
		render(b, pred.Predicate)
		b.WriteString(")")
	}
}

func renderJunction(b *strings.Builder, op, empty string, children []Predicate) {
	switch len(children) {
	case 0:
		b.WriteString(empty)
		return
	case 1:
		render(b, children[0])
		return
	}
	b.WriteString("(")
	for i, child := range children {
		if i > 0 {
			b.WriteString(" " + op + " ")
		}
		render(b, child)
	}
	b.WriteString(")")
}

// RenderValue renders a literal: quoted strings, decimal ints, true/false,
// nil for null.
func RenderValue(v ir.IRValue) string {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return "nil"
	case ir.IRString:
		return strconv.Quote(string(val))
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10)
	case ir.IRBool:
		return strconv.FormatBool(bool(val))
	default:
		data, err := ir.MarshalCanonical(val)
		if err != nil {
			return "?"
		}
		return string(data)
	}
}

// Normalize returns a canonical form of p: nested And/Or are flattened,
// True is dropped from And, double negation is removed and children are
// ordered by their rendered text. Normalized forms of equivalent
// conjunctions compare equal regardless of clause order.
func Normalize(p Predicate) Predicate {
	switch pred := p.(type) {
	case nil:
		return True{}
	case And:
		var children []Predicate
		for _, child := range pred.Predicates {
			n := Normalize(child)
			switch c := n.(type) {
			case True:
				continue
			case And:
				children = append(children, c.Predicates...)
			default:
				children = append(children, n)
			}
		}
		switch len(children) {
		case 0:
			return True{}
		case 1:
			return children[0]
		}
		sortByRender(children)
		return And{Predicates: children}
	case Or:
		var children []Predicate
		for _, child := range pred.Predicates {
			n := Normalize(child)
			if c, ok := n.(Or); ok {
				children = append(children, c.Predicates...)
				continue
			}
			children = append(children, n)
		}
		if len(children) == 1 {
			return children[0]
		}
		sortByRender(children)
		return Or{Predicates: children}
	case Not:
		inner := Normalize(pred.Predicate)
		if n, ok := inner.(Not); ok {
			return n.Predicate
		}
		return Not{Predicate: inner}
	case In:
		values := slices.Clone(pred.Values)
		slices.SortStableFunc(values, ir.Compare)
		return In{Field: pred.Field, Values: values}
	default:
		return p
	}
}

func sortByRender(children []Predicate) {
	slices.SortStableFunc(children, func(a, b Predicate) int {
		return strings.Compare(Render(a), Render(b))
	})
}

// Equivalent reports whether a and b have the same normalized structure.
// It recognizes commutativity and associativity, not general boolean
// equivalence.
func Equivalent(a, b Predicate) bool {
	return Render(Normalize(a)) == Render(Normalize(b))
}
