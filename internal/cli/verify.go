package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// checksumVerifier is implemented by backends that store record checksums.
type checksumVerifier interface {
	Verify(ctx context.Context) ([]string, error)
}

// VerifyResult is the output of the verify command.
type VerifyResult struct {
	Store      string   `json:"store"`
	Mismatched []string `json:"mismatched"`
}

func (r VerifyResult) String() string {
	if len(r.Mismatched) == 0 {
		return fmt.Sprintf("✓ All checksums match in %s", r.Store)
	}
	return fmt.Sprintf("✗ %d record(s) with mismatched checksums in %s: %v", len(r.Mismatched), r.Store, r.Mismatched)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify stored record checksums",
		Long: `Recompute the checksum of every stored record and report records whose
attributes no longer match. Requires the sqlite driver.

Exit codes:
  0 - every checksum matches
  1 - at least one record is mismatched
  2 - command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}

	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ws, err := OpenWorkspace(opts)
	if err != nil {
		return formatter.failLoad(err)
	}
	defer ws.Close()

	v, ok := ws.Backend.(checksumVerifier)
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("driver %q does not store checksums", ws.Config.Store.Driver), nil)
	}

	mismatched, err := v.Verify(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeReadFailure, "verifying checksums", err)
	}

	result := VerifyResult{Store: ws.Backend.Identifier(), Mismatched: mismatched}
	if err := formatter.Success(result); err != nil {
		return err
	}
	if len(mismatched) > 0 {
		return WrapExitError(ExitFailure, ErrCodeChecksum+": checksum mismatch", nil)
	}
	return nil
}
