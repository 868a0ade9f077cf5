package schema

import (
	"fmt"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
)

// CheckQuery reports references to unknown kinds or attributes and
// literals whose type does not match the declared attribute type.
func (s *Schema) CheckQuery(q queryir.Query) error {
	kind, ok := s.Kind(q.Entity)
	if !ok {
		return &SchemaError{Field: q.Entity, Message: "unknown entity kind"}
	}
	for _, key := range q.Sort {
		if _, ok := kind.Field(key.Field); !ok {
			return unknownField(kind, key.Field)
		}
	}
	return kind.checkPredicate(q.Filter)
}

func (k *Kind) checkPredicate(p queryir.Predicate) error {
	switch p := p.(type) {
	case nil, queryir.True:
		return nil
	case queryir.Equals:
		return k.checkLiteral(p.Field, p.Value)
	case queryir.In:
		for _, v := range p.Values {
			if err := k.checkLiteral(p.Field, v); err != nil {
				return err
			}
		}
		return nil
	case queryir.StringMatch:
		f, ok := k.Field(p.Field)
		if !ok {
			return unknownField(k, p.Field)
		}
		if f.Type != TypeString {
			return &SchemaError{
				Field:   k.Name + "." + p.Field,
				Message: fmt.Sprintf("%s applied to %s attribute", p.Op, f.Type),
			}
		}
		return nil
	case queryir.And:
		return k.checkAll(p.Predicates)
	case queryir.Or:
		return k.checkAll(p.Predicates)
	case queryir.Not:
		return k.checkPredicate(p.Predicate)
	default:
		return fmt.Errorf("unsupported predicate %T", p)
	}
}

func (k *Kind) checkAll(ps []queryir.Predicate) error {
	for _, p := range ps {
		if err := k.checkPredicate(p); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kind) checkLiteral(field string, v ir.IRValue) error {
	f, ok := k.Field(field)
	if !ok {
		return unknownField(k, field)
	}
	if ir.IsNull(v) || typeOf(v) == f.Type {
		return nil
	}
	return &SchemaError{
		Field:   k.Name + "." + field,
		Message: fmt.Sprintf("compared with %s literal, declared %s", typeOf(v), f.Type),
	}
}

// CheckRecord verifies that a snapshot conforms to its kind: every
// attribute is declared with a matching type and required attributes
// are present.
func (s *Schema) CheckRecord(snap record.Snapshot) error {
	kind, ok := s.Kind(snap.Entity)
	if !ok {
		return &SchemaError{Field: snap.Entity, Message: "unknown entity kind"}
	}

	for _, name := range snap.Attrs.SortedKeys() {
		f, ok := kind.Field(name)
		if !ok {
			return unknownField(kind, name)
		}
		if got := typeOf(snap.Attrs[name]); got != f.Type {
			return &SchemaError{
				Field:   kind.Name + "." + name,
				Message: fmt.Sprintf("record %s has %s value, declared %s", snap.ID, got, f.Type),
			}
		}
	}

	for _, f := range kind.Fields {
		if f.Optional {
			continue
		}
		if _, ok := snap.Attrs[f.Name]; !ok {
			return &SchemaError{
				Field:   kind.Name + "." + f.Name,
				Message: fmt.Sprintf("record %s is missing required attribute", snap.ID),
			}
		}
	}
	return nil
}

func unknownField(k *Kind, field string) error {
	return &SchemaError{Field: k.Name + "." + field, Message: "unknown attribute"}
}

func typeOf(v ir.IRValue) FieldType {
	switch v.(type) {
	case ir.IRString:
		return TypeString
	case ir.IRInt:
		return TypeInt
	case ir.IRBool:
		return TypeBool
	default:
		return FieldType(fmt.Sprintf("%T", v))
	}
}
