package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected declarations or failed scenarios
	ExitCommandError = 2 // Command error (bad paths, unloadable CUE, ledger I/O)
)

// ExitError carries the exit code a command failed with.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string
	Err     error // optional cause
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
// Errors that are not an ExitError map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as JSON envelopes or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; defaults to Writer
	Verbose   bool

	// Declarations is the hash of the declaration set the command loaded.
	// Every JSON envelope carries it so output can be matched to ledger runs.
	Declarations string
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status       string    `json:"status"` // "ok" or "error"
	Data         any       `json:"data,omitempty"`
	Error        *CLIError `json:"error,omitempty"`
	Declarations string    `json:"declarations,omitempty"` // declaration-set hash
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"` // loader codes E0xx/E1xx, generation codes E2xx
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(f.envelope("ok", data, nil))
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(f.envelope("error", nil, &CLIError{
			Code:    code,
			Message: message,
			Details: details,
		}))
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Failure writes an indented JSON envelope holding both the full result and
// the first error, for commands whose result explains the failure
// (rejected declarations, failed scenarios). Text output is left to the
// command.
func (f *OutputFormatter) Failure(data any, code, message string) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(f.envelope("error", data, &CLIError{Code: code, Message: message}))
}

func (f *OutputFormatter) envelope(status string, data any, cliErr *CLIError) CLIResponse {
	return CLIResponse{
		Status:       status,
		Data:         data,
		Error:        cliErr,
		Declarations: f.Declarations,
	}
}

// VerboseLog writes a line to the diagnostic writer when verbose is on.
// JSON output stays parseable as long as ErrWriter is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
