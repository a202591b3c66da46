package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/covenant/internal/compiler"
	"github.com/roach88/covenant/internal/ir"
	"github.com/roach88/covenant/internal/weaver"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Types     int               `json:"types"`
	Functions int               `json:"functions"`
	Errors    []RejectionResult `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	All bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <declarations-dir>",
		Short: "Validate declarations without writing output",
		Long: `Validate the contract declarations in a CUE package.

Runs the same checks as generate (expression syntax, old() operands,
contract placement and public-name collisions) and reports every
rejected declaration. Nothing is written.

Generation stops at the first error of each callable. With --all every
rule a callable breaks is reported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "report every broken rule, not only the first per callable")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadDeclarations(dir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)
	formatter.Declarations = loaded.Hash

	w := weaver.New(weaver.WithLogger(newLogger(opts.RootOptions, cmd)))
	var errs []*ir.GenerationError
	if opts.All {
		errs = ValidateAll(loaded.Set, w)
	} else {
		errs = ValidateDeclarations(loaded.Set, w)
	}
	result := ValidationResult{
		Valid:     len(errs) == 0,
		Types:     len(loaded.Set.Types),
		Functions: len(loaded.Set.Functions),
		Errors:    rejectionResults(errs),
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// ValidateDeclarations reports every declaration generation would reject.
func ValidateDeclarations(set *ir.DeclarationSet, w *weaver.Weaver) []*ir.GenerationError {
	if w == nil {
		w = weaver.New()
	}
	return w.Generate(set).Errors
}

// ValidateAll reports every rule each declaration breaks. Errors only the
// weaver detects (public-name collisions, underivable names) are kept for
// callables the rule checks found nothing wrong with.
func ValidateAll(set *ir.DeclarationSet, w *weaver.Weaver) []*ir.GenerationError {
	errs := compiler.Validate(set)

	flagged := make(map[string]bool, len(errs))
	for _, e := range errs {
		flagged[ir.QualifiedName(e.Type, e.Callable)] = true
	}
	for _, e := range ValidateDeclarations(set, w) {
		// a type-level error blocks every member of the type
		if flagged[ir.QualifiedName(e.Type, e.Callable)] || flagged[ir.QualifiedName(e.Type, "")] {
			continue
		}
		errs = append(errs, e)
	}
	return errs
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All declarations valid (%d type(s), %d function(s))\n", result.Types, result.Functions)
	return nil
}

// outputValidationErrors outputs every rejected declaration.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		if err := formatter.Failure(result, result.Errors[0].Code, result.Errors[0].Message); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "%s\n", e.Callable)
		if e.Rule != "" {
			fmt.Fprintf(formatter.Writer, "  %s %s (%s): %s\n", e.Code, e.Kind, e.Rule, e.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Kind, e.Message)
		}
		if e.Clause != "" {
			fmt.Fprintf(formatter.Writer, "  clause: %s\n", e.Clause)
		}
		fmt.Fprintln(formatter.Writer)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
