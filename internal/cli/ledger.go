package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/covenant/internal/store"
)

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	*RootOptions
	Database string
	Run      int64 // 0 lists every run
}

// LedgerResult is the payload of the ledger command.
type LedgerResult struct {
	Runs  []store.Run  `json:"runs,omitempty"`
	Run   *store.Run   `json:"run,omitempty"`
	Drift *store.Drift `json:"drift,omitempty"`
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect recorded generation runs",
		Long: `Inspect the generation ledger written by "generate --ledger".

Without --run, lists every recorded run. With --run, shows the run's
wrappers and rejections and its drift from the previous run with the
same label.

Examples:
  covenant ledger --db ./covenant.db
  covenant ledger --db ./covenant.db --run 3
  covenant ledger --db ./covenant.db --run 3 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to ledger database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Int64Var(&opts.Run, "run", 0, "show one run and its drift")

	return cmd
}

func runLedger(opts *LedgerOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("ledger not found: %s", opts.Database))
	}

	ledger, err := store.Open(opts.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeLedger, fmt.Sprintf("opening ledger: %v", err))
	}
	defer ledger.Close()

	if opts.Run == 0 {
		runs, err := ledger.ListRuns(ctx)
		if err != nil {
			return outputCommandError(formatter, ErrCodeLedger, err.Error())
		}
		return outputRuns(formatter, runs)
	}

	run, err := ledger.ReadRun(ctx, opts.Run)
	if errors.Is(err, store.ErrNoRun) {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("run %d not found", opts.Run))
	}
	if err != nil {
		return outputCommandError(formatter, ErrCodeLedger, err.Error())
	}

	result := LedgerResult{Run: &run}
	drift, err := ledger.Drift(ctx, run.Seq)
	switch {
	case errors.Is(err, store.ErrNoRun):
	case err != nil:
		return outputCommandError(formatter, ErrCodeLedger, err.Error())
	default:
		result.Drift = &drift
	}
	return outputRun(formatter, result)
}

func outputRuns(formatter *OutputFormatter, runs []store.Run) error {
	if formatter.Format == "json" {
		if runs == nil {
			runs = []store.Run{}
		}
		return formatter.Success(LedgerResult{Runs: runs})
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%4d  %-16s  %s  generator %s\n", r.Seq, r.Label, shortHash(r.DeclarationHash), r.GeneratorVersion)
	}
	return nil
}

func outputRun(formatter *OutputFormatter, result LedgerResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	run := result.Run
	fmt.Fprintf(w, "Run %d (%s)\n", run.Seq, run.Label)
	fmt.Fprintf(w, "  declarations: %s\n", run.DeclarationHash)
	fmt.Fprintf(w, "  generator %s, descriptor format %s\n\n", run.GeneratorVersion, run.DescriptorVersion)

	fmt.Fprintf(w, "Wrappers (%d):\n", len(run.Descriptors))
	for _, d := range run.Descriptors {
		fmt.Fprintf(w, "  %s  %s\n", shortHash(d.Hash), d.QualifiedName)
	}
	if len(run.Rejections) > 0 {
		fmt.Fprintf(w, "\nRejected (%d):\n", len(run.Rejections))
		for _, r := range run.Rejections {
			fmt.Fprintf(w, "  %s %s: %s\n", r.Code, r.Callable, r.Message)
		}
	}

	fmt.Fprintln(w)
	writeDrift(formatter, run.Seq, result.Drift)
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
