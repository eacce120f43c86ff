package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/edb"
	"github.com/roach88/edb/internal/event"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the database or a check said no: rejected commit, failed verify or scenario
	ExitCommandError = 2 // the command could not run: bad input, unreadable database or config
)

// ExitError carries the exit code a command wants main to use.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure when there is none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every JSON response.
type CLIResponse struct {
	Status string    `json:"status"` // ok | error
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command in JSON output. Code is an edb error
// code (CONFLICT, NOT_FOUND, ...) or a CLI code prefixed with E_.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or as one JSON response
// per call. Diagnostics go to ErrWriter so JSON on Writer stays parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

func (f *OutputFormatter) encode(resp CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(resp)
}

// Success writes data. Text output prints it with its default format.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure. Details are printed in text mode only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog prints a diagnostic line when verbose is on.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
	}
}

// GetErrWriter returns ErrWriter, or Writer when ErrWriter is unset.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// render writes data as a JSON response, or calls text for human output.
func render(cmd *cobra.Command, opts *RootOptions, data any, text func(w io.Writer)) error {
	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(data)
	}
	text(cmd.OutOrStdout())
	return nil
}

// fail reports err in the configured format and returns the matching
// ExitError. Database rejections exit with ExitFailure; anything else is a
// command error.
func fail(cmd *cobra.Command, opts *RootOptions, message string, err error) error {
	code, exit := errorCode(err)
	if opts.Format == "json" {
		if outErr := newFormatter(cmd, opts).Error(code, fmt.Sprintf("%s: %v", message, err), nil); outErr != nil {
			return outErr
		}
	}
	return WrapExitError(exit, message, err)
}

func errorCode(err error) (string, int) {
	var edbErr *edb.Error
	var checkErr *edb.CheckError
	switch {
	case errors.As(err, &checkErr):
		return string(edb.ErrCodeConflict), ExitFailure
	case event.IsCollision(err):
		return "E_COLLISION", ExitFailure
	case event.IsContextBusy(err):
		return "E_CONTEXT_BUSY", ExitFailure
	case errors.As(err, &edbErr):
		if edbErr.Code == edb.ErrCodeBackend {
			return string(edbErr.Code), ExitCommandError
		}
		return string(edbErr.Code), ExitFailure
	}
	return "E_COMMAND", ExitCommandError
}
