package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/strata/internal/entity"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	DryRun bool
	Strict bool
}

// StepResult reports what one plan step did.
type StepResult struct {
	Step     int      `json:"step"`
	Kind     string   `json:"kind"`
	Outcome  string   `json:"outcome"`
	Affected []string `json:"affected"`
	Degraded string   `json:"degraded,omitempty"`
}

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	Store     string       `json:"store"`
	Steps     []StepResult `json:"steps"`
	Committed bool         `json:"committed"`
}

func (r ApplyResult) String() string {
	var b strings.Builder
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "  step %d %s: %s (%d)", s.Step, s.Kind, s.Outcome, len(s.Affected))
		if s.Degraded != "" {
			fmt.Fprintf(&b, " degraded: %s", s.Degraded)
		}
		b.WriteString("\n")
	}
	if r.Committed {
		fmt.Fprintf(&b, "✓ Applied %d step(s) to %s", len(r.Steps), r.Store)
	} else {
		fmt.Fprintf(&b, "✓ Planned %d step(s) against %s (not committed)", len(r.Steps), r.Store)
	}
	return b.String()
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <plan.yaml>",
		Short: "Apply a YAML reconcile plan",
		Long: `Apply a YAML plan of reconcile and delete steps in a single session.

Each step sees the pending changes of the steps before it. All changes are
committed together at the end; if the commit fails nothing is written.

Example plan:
  steps:
    - kind: Person
      where: 'email LIKE[c] "ann@example.com"'
      create: true
      update: true
      set: {email: ann@example.com, name: Ann}

Example:
  strata apply plan.yaml
  strata apply plan.yaml --dry-run --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "run every step without committing")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when a step read degrades instead of treating it as no matches")

	return cmd
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	plan, err := LoadPlan(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidPlan, "invalid plan", err)
	}

	ws, err := OpenWorkspace(opts.RootOptions)
	if err != nil {
		return formatter.failLoad(err)
	}
	defer ws.Close()

	result := ApplyResult{Store: ws.Entity.Identifier(), Steps: []StepResult{}}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if ws.Schema != nil {
			if err := ws.Schema.CheckQuery(step.Query()); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeSchema, fmt.Sprintf("step %d does not match schema", i+1), err)
			}
		}

		var (
			update entity.Update
			setErr error
		)
		if step.Delete {
			update = ws.Entity.Delete(ctx, step.Query())
		} else {
			update = ws.Entity.Reconcile(ctx, step.spec(&setErr))
		}
		if update.Err != nil {
			return formatter.Fail(ExitFailure, ErrCodeInvalidPlan, fmt.Sprintf("step %d failed", i+1), update.Err)
		}
		if setErr != nil {
			return formatter.Fail(ExitFailure, ErrCodeInvalidPlan, fmt.Sprintf("step %d failed", i+1), setErr)
		}
		if update.Degraded != nil && opts.Strict {
			return formatter.Fail(ExitFailure, ErrCodeReadFailure, fmt.Sprintf("step %d read degraded", i+1), update.Degraded)
		}

		sr := StepResult{
			Step:     i + 1,
			Kind:     step.Kind,
			Outcome:  update.Outcome.String(),
			Affected: make([]string, 0, len(update.Affected)),
		}
		for _, rec := range update.Affected {
			sr.Affected = append(sr.Affected, rec.ID())
		}
		if update.Degraded != nil {
			sr.Degraded = update.Degraded.Error()
		}
		result.Steps = append(result.Steps, sr)

		ws.Logger.Debug("plan step applied",
			zap.Int("step", sr.Step),
			zap.String("kind", sr.Kind),
			zap.String("outcome", sr.Outcome),
			zap.Int("affected", len(sr.Affected)))
	}

	if opts.DryRun {
		ws.Session.Rollback()
		return formatter.Success(result)
	}

	if err := ws.Session.Save(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeWriteFailure, "committing plan", err)
	}
	result.Committed = true
	return formatter.Success(result)
}
