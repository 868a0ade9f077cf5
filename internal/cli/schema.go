package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/schema"
)

// FieldSummary describes one declared attribute.
type FieldSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// KindSummary describes one entity kind.
type KindSummary struct {
	Name   string         `json:"name"`
	Fields []FieldSummary `json:"fields"`
}

// SchemaResult is the output of the schema command.
type SchemaResult struct {
	Valid bool          `json:"valid"`
	Kinds []KindSummary `json:"kinds"`
}

func (r SchemaResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Schema valid: %d kind(s)", len(r.Kinds))
	for _, k := range r.Kinds {
		fields := make([]string, 0, len(k.Fields))
		for _, f := range k.Fields {
			opt := ""
			if f.Optional {
				opt = "?"
			}
			fields = append(fields, fmt.Sprintf("%s%s: %s", f.Name, opt, f.Type))
		}
		fmt.Fprintf(&b, "\n  %s { %s }", k.Name, strings.Join(fields, ", "))
	}
	return b.String()
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [schema-dir]",
		Short: "Validate CUE entity schemas",
		Long: `Load the CUE entity schemas in a directory and list the declared kinds.

Without an argument the directory configured by SCHEMA_DIR is used.
Every field must be string, int or bool; floats are rejected.

Example:
  strata schema ./schemas`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runSchema(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runSchema(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if dir == "" {
		cfg, err := loadConfigOnly(opts)
		if err != nil {
			return formatter.failLoad(err)
		}
		dir = cfg.Schema.Dir
		if dir == "" {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no schema directory given and SCHEMA_DIR is not set", nil)
		}
	}

	sch, err := LoadSchema(dir)
	if err != nil {
		return formatter.failLoad(err)
	}
	formatter.VerboseLog("Loaded %d kind(s) from %s", len(sch.Kinds()), dir)

	return formatter.Success(summarize(sch))
}

func summarize(sch *schema.Schema) SchemaResult {
	result := SchemaResult{Valid: true, Kinds: []KindSummary{}}
	for _, name := range sch.Kinds() {
		kind, _ := sch.Kind(name)
		ks := KindSummary{Name: name, Fields: make([]FieldSummary, 0, len(kind.Fields))}
		for _, f := range kind.Fields {
			ks.Fields = append(ks.Fields, FieldSummary{Name: f.Name, Type: string(f.Type), Optional: f.Optional})
		}
		result.Kinds = append(result.Kinds, ks)
	}
	return result
}
