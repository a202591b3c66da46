package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/covenant/internal/ir"
	"github.com/roach88/covenant/internal/store"
	"github.com/roach88/covenant/internal/weaver"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Output string // descriptor file path
	Ledger string // ledger database path
	Label  string // ledger label for this declaration set
}

// GenerationResult is the payload of the generate command.
type GenerationResult struct {
	Wrappers    []string          `json:"wrappers"`
	PassThrough []string          `json:"pass_through,omitempty"`
	Rejected    []RejectionResult `json:"rejected,omitempty"`
	Run         *int64            `json:"run,omitempty"`
	Drift       *store.Drift      `json:"drift,omitempty"`
}

// RejectionResult describes one rejected declaration.
type RejectionResult struct {
	Code     string `json:"code"`
	Kind     string `json:"kind"`
	Rule     string `json:"rule,omitempty"`
	Callable string `json:"callable"`
	Clause   string `json:"clause,omitempty"`
	Message  string `json:"message"`
}

// descriptorFile is the layout of the --output file.
type descriptorFile struct {
	GeneratorVersion  string                `json:"generator_version"`
	DescriptorVersion string                `json:"descriptor_version"`
	Descriptors       []*ir.Descriptor      `json:"descriptors"`
	PassThrough       []string              `json:"pass_through,omitempty"`
	Errors            []*ir.GenerationError `json:"errors,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <declarations-dir>",
		Short: "Generate contract-enforcing wrappers",
		Long: `Generate a wrapper descriptor for every contracted callable declared
in the CUE package at <declarations-dir>.

Generation is best-effort: every rejected declaration is reported and the
rest still produce wrappers. With --ledger the run is recorded and compared
against the previous run of the same label.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write descriptors to this file")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "record the run in this ledger database")
	cmd.Flags().StringVar(&opts.Label, "label", "default", "ledger label for this declaration set")

	return cmd
}

func runGenerate(opts *GenerateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadDeclarations(dir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)
	formatter.Declarations = loaded.Hash

	res := weaver.New(weaver.WithLogger(newLogger(opts.RootOptions, cmd))).Generate(loaded.Set)

	result := &GenerationResult{
		Wrappers:    make([]string, 0, len(res.Descriptors)),
		PassThrough: res.PassThrough,
		Rejected:    rejectionResults(res.Errors),
	}
	for _, d := range res.Descriptors {
		result.Wrappers = append(result.Wrappers, d.QualifiedName())
	}

	if opts.Output != "" {
		if err := writeDescriptors(res, opts.Output); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if opts.Ledger != "" {
		if err := recordRun(cmd.Context(), opts, loaded.Set, res, result); err != nil {
			return outputCommandError(formatter, ErrCodeLedger, err.Error())
		}
	}

	if err := outputGenerateResult(formatter, result, opts.Output); err != nil {
		return err
	}
	if len(result.Rejected) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d declaration(s) rejected", len(result.Rejected)))
	}
	return nil
}

// recordRun writes the run to the ledger and fills in its drift.
func recordRun(ctx context.Context, opts *GenerateOptions, set *ir.DeclarationSet, res *weaver.Result, result *GenerationResult) error {
	ledger, err := store.Open(opts.Ledger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	run, err := ledger.RecordRun(ctx, opts.Label, set, res.Descriptors, res.Errors)
	if err != nil {
		return err
	}
	result.Run = &run.Seq

	drift, err := ledger.Drift(ctx, run.Seq)
	if errors.Is(err, store.ErrNoRun) {
		return nil
	}
	if err != nil {
		return err
	}
	result.Drift = &drift
	return nil
}

func rejectionResults(errs []*ir.GenerationError) []RejectionResult {
	var out []RejectionResult
	for _, e := range errs {
		out = append(out, RejectionResult{
			Code:     e.Code(),
			Kind:     string(e.Kind),
			Rule:     e.Rule,
			Callable: ir.QualifiedName(e.Type, e.Callable),
			Clause:   e.Clause,
			Message:  e.Message,
		})
	}
	return out
}

// writeDescriptors writes the generation result as indented JSON.
// Canonical JSON is used only for ledger hashing.
func writeDescriptors(res *weaver.Result, filename string) error {
	file := descriptorFile{
		GeneratorVersion:  ir.GeneratorVersion,
		DescriptorVersion: ir.DescriptorVersion,
		Descriptors:       res.Descriptors,
		PassThrough:       res.PassThrough,
		Errors:            res.Errors,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling descriptors: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func outputGenerateResult(formatter *OutputFormatter, result *GenerationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Generated %d wrapper(s), %d pass-through\n", len(result.Wrappers), len(result.PassThrough))
	for _, name := range result.Wrappers {
		fmt.Fprintf(w, "  %s\n", name)
	}

	if len(result.Rejected) > 0 {
		fmt.Fprintf(w, "\n✗ Rejected %d declaration(s)\n", len(result.Rejected))
		writeRejections(formatter, result.Rejected)
	}

	if result.Run != nil {
		fmt.Fprintln(w)
		writeDrift(formatter, *result.Run, result.Drift)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote descriptors to %s\n", outputFile)
	}
	return nil
}

func writeRejections(formatter *OutputFormatter, rejected []RejectionResult) {
	for _, r := range rejected {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", r.Code, r.Callable, r.Message)
		if r.Clause != "" && formatter.Verbose {
			fmt.Fprintf(formatter.Writer, "      clause: %s\n", r.Clause)
		}
	}
}

func writeDrift(formatter *OutputFormatter, seq int64, drift *store.Drift) {
	w := formatter.Writer
	if drift == nil {
		fmt.Fprintf(w, "Ledger run %d: no previous run\n", seq)
		return
	}
	if drift.Empty() && !drift.DeclarationsChanged {
		fmt.Fprintf(w, "Ledger run %d: no drift since run %d\n", seq, drift.From)
		return
	}
	fmt.Fprintf(w, "Ledger run %d: drift since run %d\n", seq, drift.From)
	if drift.DeclarationsChanged {
		fmt.Fprintln(w, "  declarations changed")
	}
	for _, name := range drift.Added {
		fmt.Fprintf(w, "  + %s\n", name)
	}
	for _, name := range drift.Removed {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	for _, name := range drift.Changed {
		fmt.Fprintf(w, "  ~ %s\n", name)
	}
}

// outputLoadError reports a declaration load failure (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Error(), nil)
		return NewExitError(ExitCommandError, loadErr.Error())
	}
	return outputCommandError(formatter, ErrCodeGeneric, err.Error())
}

// outputCommandError reports a command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
