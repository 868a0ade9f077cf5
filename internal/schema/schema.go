// Package schema loads entity definitions written in CUE.
//
// A schema file declares kinds under the top-level "entity" struct:
//
//	entity: User: {
//		email:  string
//		age?:   int
//		active: bool
//	}
//
// Optional fields are marked with "?". Only string, int and bool
// attributes are supported; floats are rejected.
package schema

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/strata/internal/queryir"
)

// FieldType is the attribute type declared for a field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeBool   FieldType = "bool"
)

// Field describes one declared attribute.
type Field struct {
	Name     string
	Type     FieldType
	Optional bool
}

// Kind is a named entity shape.
type Kind struct {
	Name   string
	Fields []Field // sorted by name
	byName map[string]Field
}

// Field looks up a declared attribute.
func (k *Kind) Field(name string) (Field, bool) {
	f, ok := k.byName[name]
	return f, ok
}

// Schema is the set of kinds declared in one CUE instance.
type Schema struct {
	kinds map[string]*Kind
}

// Kind returns the named kind.
func (s *Schema) Kind(name string) (*Kind, bool) {
	k, ok := s.kinds[name]
	return k, ok
}

// Kinds returns kind names in sorted order.
func (s *Schema) Kinds() []string {
	names := make([]string, 0, len(s.kinds))
	for name := range s.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile parses CUE source text into a Schema.
func Compile(src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("schema.cue"))
	return FromValue(v)
}

// Load builds the CUE instance in dir and extracts its kinds.
func Load(dir string) (*Schema, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	return FromValue(ctx.BuildInstance(inst))
}

// FromValue extracts kinds from a built CUE value.
func FromValue(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &SchemaError{Field: "entity", Message: "no entity kinds declared", Pos: v.Pos()}
	}

	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{kinds: make(map[string]*Kind)}
	for iter.Next() {
		kind, err := compileKind(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		s.kinds[kind.Name] = kind
	}
	if len(s.kinds) == 0 {
		return nil, &SchemaError{Field: "entity", Message: "no entity kinds declared", Pos: entities.Pos()}
	}
	return s, nil
}

func compileKind(name string, v cue.Value) (*Kind, error) {
	if !queryir.ValidField(name) {
		return nil, &SchemaError{Field: "entity." + name, Message: "invalid kind name", Pos: v.Pos()}
	}

	iter, err := v.Fields(cue.Optional(true))
	if err != nil {
		return nil, formatCUEError(err)
	}

	kind := &Kind{Name: name, byName: make(map[string]Field)}
	for iter.Next() {
		fieldName := iter.Label()
		path := "entity." + name + "." + fieldName
		if !queryir.ValidField(fieldName) {
			return nil, &SchemaError{Field: path, Message: "invalid attribute name", Pos: iter.Value().Pos()}
		}
		ft, err := extractType(path, iter.Value())
		if err != nil {
			return nil, err
		}
		f := Field{Name: fieldName, Type: ft, Optional: iter.IsOptional()}
		kind.Fields = append(kind.Fields, f)
		kind.byName[fieldName] = f
	}

	sort.Slice(kind.Fields, func(i, j int) bool {
		return kind.Fields[i].Name < kind.Fields[j].Name
	})
	return kind, nil
}

// extractType maps a CUE kind to an attribute type.
func extractType(path string, v cue.Value) (FieldType, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return TypeString, nil
	case cue.IntKind:
		return TypeInt, nil
	case cue.BoolKind:
		return TypeBool, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &SchemaError{
			Field:   path,
			Message: "float types are not supported, use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &SchemaError{
			Field:   path,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// SchemaError reports a schema definition or conformance problem.
type SchemaError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &SchemaError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
