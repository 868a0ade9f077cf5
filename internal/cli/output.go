package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/record"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (degraded read, rejected write, checksum mismatch)
	ExitCommandError = 2 // Command error (bad config, unparsable clause, missing file)
)

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfig       = "E002" // Configuration could not be loaded
	ErrCodeOpenFailed   = "E003" // Backend could not be opened
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeInvalidQuery = "E201" // Clause or query rejected
	ErrCodeInvalidPlan  = "E202" // Reconcile plan rejected
	ErrCodeReadFailure  = "E301" // Backend read failed
	ErrCodeWriteFailure = "E302" // Backend write failed
	ErrCodeChecksum     = "E303" // Stored checksum mismatch
	ErrCodeSchema       = "E401" // Schema invalid or violated
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	Store  string    `json:"store,omitempty"` // identifier of the store the command ran against
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// RecordView is the display form of a record.
type RecordView struct {
	ID     string         `json:"id"`
	Entity string         `json:"entity"`
	Attrs  map[string]any `json:"attrs"`
}

// ViewRecords converts records for output, preserving order.
func ViewRecords(recs []*record.Record) []RecordView {
	out := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		attrs, _ := ir.ToAny(rec.Attributes()).(map[string]any)
		out = append(out, RecordView{ID: rec.ID(), Entity: rec.Entity(), Attrs: attrs})
	}
	return out
}

// Success outputs a successful result in the configured format.
// Text output uses fmt's default formatting unless data implements
// fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Records outputs records one per line in text mode, or as the data array
// of a JSON response.
func (f *OutputFormatter) Records(recs []*record.Record) error {
	views := ViewRecords(recs)
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   views,
		})
	}

	for _, rec := range recs {
		attrs, err := ir.MarshalCanonical(rec.Attributes())
		if err != nil {
			return err
		}
		fmt.Fprintf(f.Writer, "%s\t%s\t%s\n", rec.Entity(), rec.ID(), attrs)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail writes the error and returns an ExitError carrying exitCode, so
// commands can `return f.Fail(...)`.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	_ = f.Error(code, message, details)
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
