package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/covenant/internal/codegen"
	"github.com/roach88/covenant/internal/weaver"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	Package       string // package clause of the emitted file
	Output        string // file path; stdout when empty
	RuntimeImport string // import path of the enforce runtime
}

// EmitResult is the JSON payload of the emit command.
type EmitResult struct {
	Package  string            `json:"package"`
	Wrappers []string          `json:"wrappers"`
	Output   string            `json:"output,omitempty"`
	Source   string            `json:"source,omitempty"` // set when no output file is given
	Rejected []RejectionResult `json:"rejected,omitempty"`
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <declarations-dir>",
		Short: "Emit Go source for the generated wrappers",
		Long: `Emit one Go source file holding the exported wrapper of every
contracted callable. Each wrapper calls the enforce runtime around the
unexported implementation it wraps.

Rejected declarations are reported and left out of the file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Package, "package", "p", "", "package name of the emitted file (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (default stdout)")
	cmd.Flags().StringVar(&opts.RuntimeImport, "runtime-import", codegen.DefaultRuntimeImport, "import path of the enforce runtime")
	_ = cmd.MarkFlagRequired("package")

	return cmd
}

func runEmit(opts *EmitOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadDeclarations(dir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.Declarations = loaded.Hash

	res := weaver.New(weaver.WithLogger(newLogger(opts.RootOptions, cmd))).Generate(loaded.Set)
	formatter.VerboseLog("Emitting %d wrapper(s) into package %s", len(res.Descriptors), opts.Package)

	src, err := codegen.Emit(res.Descriptors, codegen.Options{
		Package:       opts.Package,
		RuntimeImport: opts.RuntimeImport,
	})
	if err != nil {
		var emitErr *codegen.EmitError
		if errors.As(err, &emitErr) {
			return NewExitError(ExitFailure, emitErr.Error())
		}
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	result := EmitResult{
		Package:  opts.Package,
		Wrappers: make([]string, 0, len(res.Descriptors)),
		Output:   opts.Output,
		Rejected: rejectionResults(res.Errors),
	}
	for _, d := range res.Descriptors {
		result.Wrappers = append(result.Wrappers, d.QualifiedName())
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, src, 0644); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if err := outputEmitResult(formatter, result, src); err != nil {
		return err
	}
	if len(result.Rejected) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d declaration(s) rejected", len(result.Rejected)))
	}
	return nil
}

func outputEmitResult(formatter *OutputFormatter, result EmitResult, src []byte) error {
	if formatter.Format == "json" {
		if result.Output == "" {
			result.Source = string(src)
		}
		return formatter.Success(result)
	}

	// Source goes to stdout; the summary goes to stderr so it can be piped.
	if result.Output == "" {
		if _, err := formatter.Writer.Write(src); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✓ Wrote %d wrapper(s) to %s\n", len(result.Wrappers), result.Output)
	}

	if len(result.Rejected) > 0 {
		w := formatter.GetErrWriter()
		fmt.Fprintf(w, "✗ Rejected %d declaration(s)\n", len(result.Rejected))
		for _, r := range result.Rejected {
			fmt.Fprintf(w, "  %s %s: %s\n", r.Code, r.Callable, r.Message)
		}
	}
	return nil
}
