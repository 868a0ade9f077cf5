package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	QueryFlags
	Count bool
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <entity> [clause...]",
		Short: "Fetch records matching a clause",
		Long: `Fetch records of one entity kind, optionally filtered by a clause.

Records are returned in a deterministic order: the --sort keys first, then
insertion order.

Example:
  strata fetch Person
  strata fetch Person 'email ENDSWITH[c] "@example.com"' --sort -age --limit 10
  strata fetch Person 'name IN {"Ann", "Bob"} AND NOT archived == true' --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, args[0], strings.Join(args[1:], " "), cmd)
		},
	}

	opts.QueryFlags.register(cmd)
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print only the number of matching records")

	return cmd
}

func runFetch(opts *FetchOptions, kind, clause string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ws, err := OpenWorkspace(opts.RootOptions)
	if err != nil {
		return formatter.failLoad(err)
	}
	defer ws.Close()

	req, err := opts.prepare(formatter, ws, kind, clause)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Fetching %s from %s", req, ws.Entity.Identifier())

	res := ws.Entity.Fetch(cmd.Context(), req.Query())
	if res.Degraded != nil {
		return formatter.Fail(ExitFailure, ErrCodeReadFailure, "fetch failed", res.Degraded)
	}

	if opts.Count {
		return formatter.Success(len(res.Records))
	}
	return formatter.Records(res.Records)
}
