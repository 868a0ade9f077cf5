package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/entity"
	"github.com/roach88/strata/internal/filter"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	QueryFlags
	DryRun bool
	All    bool
}

// DeleteResult is the output of the delete command.
type DeleteResult struct {
	Store   string       `json:"store"`
	Deleted []RecordView `json:"deleted"`
	DryRun  bool         `json:"dry_run,omitempty"`
}

func (r DeleteResult) String() string {
	verb := "Deleted"
	if r.DryRun {
		verb = "Would delete"
	}
	return fmt.Sprintf("✓ %s %d record(s) from %s", verb, len(r.Deleted), r.Store)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <entity> [clause...]",
		Short: "Delete records matching a clause",
		Long: `Delete every record of one entity kind matching a clause and commit.

A clause is required unless --all is given. With --dry-run the matching
records are reported and nothing is committed.

Example:
  strata delete Session 'expired == true'
  strata delete Person 'email BEGINSWITH[c] "test"' --dry-run
  strata delete Tmp --all`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], strings.Join(args[1:], " "), cmd)
		},
	}

	opts.QueryFlags.register(cmd)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report matches without committing")
	cmd.Flags().BoolVar(&opts.All, "all", false, "allow deleting without a clause")

	return cmd
}

func runDelete(opts *DeleteOptions, kind, clause string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if strings.TrimSpace(clause) == "" && !opts.All {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidQuery,
			"refusing to delete every record without --all", nil)
	}

	ws, err := OpenWorkspace(opts.RootOptions)
	if err != nil {
		return formatter.failLoad(err)
	}
	defer ws.Close()

	req, err := opts.prepare(formatter, ws, kind, clause)
	if err != nil {
		return err
	}

	update := filter.NewDeleteRequest[entity.Update](ws.Entity.Delete, req).Execute(cmd.Context())
	if update.Degraded != nil {
		return formatter.Fail(ExitFailure, ErrCodeReadFailure, "fetching records to delete", update.Degraded)
	}
	formatter.VerboseLog("Staged %d deletion(s) against %s", len(update.Affected), update.Identifier)

	result := DeleteResult{
		Store:   update.Identifier,
		Deleted: ViewRecords(update.Affected),
		DryRun:  opts.DryRun,
	}
	if opts.DryRun {
		ws.Session.Rollback()
		return formatter.Success(result)
	}

	if err := update.Commit(cmd.Context()); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeWriteFailure, "committing deletions", err)
	}
	return formatter.Success(result)
}
