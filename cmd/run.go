// =============================================================================
// Invoice Reconciler - Run Command
// =============================================================================
//
// COMMAND USAGE:
//   reconciler run --month 2024-03 [--statement file ...]
//
// PROCESSING PIPELINE:
//   1. Read the statement files (given, or discovered in statements_dir)
//   2. Validate every row; invalid rows fail the run unless
//      processing.skip_invalid_rows is set (an error log is written)
//   3. Fetch the month's active invoices from the store
//   4. Start a session and match one transaction per step, drawing a
//      progress line
//   5. Write the session summary; archive the statements when the session
//      is completed and processing.archive_on_complete is set
//
// Ctrl-C stops the run between two steps. The session is stored as
// "cancelled" and can be finished with 'reconciler resume'.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-reconciler/internal/session"
	"github.com/ginjaninja78/invoice-reconciler/internal/source"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
	"github.com/ginjaninja78/invoice-reconciler/internal/validation"
	"github.com/ginjaninja78/invoice-reconciler/pkg/utils"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		month      string
		statements []string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile the bank statements of a month against its invoices",
		Long: `The run command reads the month's bank statements, fetches the month's
active invoices and pairs every debit with the first unclaimed invoice of the
exact same amount.

The session ends "completed" when every debit found an invoice, "saved"
otherwise. Saved sessions can be resumed once the missing invoices are in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := types.ParseMonth(month)
			if err != nil {
				return err
			}
			return runReconcile(cmd, a, m, statements, quiet)
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Reconciliation month (YYYY-MM)")
	cmd.Flags().StringSliceVar(&statements, "statement", nil, "Statement file to read (repeatable); default: every file in statements_dir")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not draw the progress line")
	cmd.MarkFlagRequired("month")

	return cmd
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runReconcile(cmd *cobra.Command, a *app, month types.Month, paths []string, quiet bool) error {
	ctx := cmd.Context()
	w := out(cmd)
	startTime := time.Now()
	cfg := a.cfg

	fm := utils.NewFileManager(cfg.StatementsDir, cfg.OutputDir, cfg.StatementsArchiveDir)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 1: LOAD STATEMENTS
	// =========================================================================

	if len(paths) == 0 {
		discovered, err := fm.DiscoverStatements()
		if err != nil {
			return err
		}
		if len(discovered) == 0 {
			return fmt.Errorf("no statement files found in %s", cfg.StatementsDir)
		}
		paths = discovered
	}

	fmt.Fprintf(w, "=== Invoice Reconciler: %s ===\n", month)
	fmt.Fprintf(w, "Reading %d statement file(s)...\n", len(paths))

	files := source.NewStatementFiles(paths, cfg.Statements, source.StatementOptions{
		SkipInvalidRows: cfg.Processing.SkipInvalidRows,
		Logger:          a.log,
	})
	batch, err := files.Load(ctx, month)
	if err != nil {
		if batch != nil && batch.Result != nil {
			reportValidation(w, cfg.OutputDir, "statements", batch.Result)
		}
		return err
	}
	if batch.Result.ErrorCount > 0 || batch.Result.WarningCount > 0 {
		reportValidation(w, cfg.OutputDir, "statements", batch.Result)
	}
	fmt.Fprintf(w, "Transactions in %s: %d (%d outside the month ignored)\n", month, len(batch.Transactions), batch.OutOfMonth)

	// =========================================================================
	// STEP 2: MATCH
	// =========================================================================

	if err := a.openStore(ctx); err != nil {
		return err
	}

	var progress *progressLine
	if !quiet {
		progress = &progressLine{w: w}
	}

	result, err := a.tracker.Reconcile(ctx, session.Request{
		Month:        month,
		Transactions: source.NewMemory(batch.Transactions, nil),
		Invoices:     a.invoices,
		Files:        batch.Files,
		Observer:     progress.observe,
	})
	progress.done()

	if errors.Is(err, context.Canceled) && result.ID != "" {
		fmt.Fprintf(w, "\nRun cancelled after %.0f%%. Session %s stored as %q.\n", result.Summary.ProgressPercentage, result.ID, result.Status)
		fmt.Fprintf(w, "Finish it with: reconciler resume %s --auto\n", result.ID)
		return err
	}
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 3: SUMMARY AND ARCHIVE
	// =========================================================================

	printSummary(w, result)

	summaryPath, err := utils.WriteSummaryLog(result, cfg.OutputDir)
	if err != nil {
		a.log.Warn("failed to write summary log", "error", err)
	} else {
		fmt.Fprintf(w, "Summary written to %s\n", summaryPath)
	}

	if result.Status == types.StatusCompleted && cfg.Processing.ArchiveOnComplete {
		archiveStatements(w, a, fm, batch.Files)
	}

	fmt.Fprintf(w, "Time elapsed: %s\n", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// progressLine redraws a single progress line per snapshot. A nil
// progressLine draws nothing.
type progressLine struct {
	w     io.Writer
	drawn bool
}

func (p *progressLine) observe(s types.Session) {
	if p == nil {
		return
	}
	const width = 30
	filled := int(s.Summary.ProgressPercentage / 100 * width)
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)

	processed := int(s.Summary.ProgressPercentage / 100 * float64(s.Summary.TotalTransactions))
	fmt.Fprintf(p.w, "\r[%s] %3.0f%%  %d/%d transactions, %d matched",
		bar, s.Summary.ProgressPercentage, processed, s.Summary.TotalTransactions, s.Summary.ReconciledCount)
	p.drawn = true
}

func (p *progressLine) done() {
	if p != nil && p.drawn {
		fmt.Fprintln(p.w)
	}
}

func printSummary(w io.Writer, s types.Session) {
	fmt.Fprintln(w, "\n=== Reconciliation Complete ===")
	fmt.Fprintf(w, "Session:            %s\n", s.ID)
	fmt.Fprintf(w, "Status:             %s\n", s.Status)
	fmt.Fprintf(w, "Transactions:       %d (%d debits)\n", s.Summary.TotalTransactions, s.Summary.TotalDebitTransactions)
	fmt.Fprintf(w, "Reconciled:         %d\n", s.Summary.ReconciledCount)
	fmt.Fprintf(w, "Pending:            %d\n", s.Summary.UnreconciledCount)
	fmt.Fprintf(w, "Reconciled amount:  %s\n", s.Summary.ReconciledAmount.StringFixed(2))
}

// reportValidation prints the validation outcome and writes the full error
// log to the output directory as <what>_errors_<timestamp>.log.
func reportValidation(w io.Writer, outputDir, what string, result *validation.ValidationResult) {
	fmt.Fprintf(w, "Validation: %d error(s), %d warning(s) in %d row(s)\n", result.ErrorCount, result.WarningCount, result.RowsValidated)
	if len(result.Errors) == 0 {
		return
	}

	logPath := filepath.Join(outputDir, fmt.Sprintf("%s_errors_%s.log", what, time.Now().Format("20060102_150405")))
	if err := validation.WriteErrorLog(result.Errors, logPath); err != nil {
		fmt.Fprintf(w, "  (failed to write error log: %v)\n", err)
		return
	}
	fmt.Fprintf(w, "  Details written to %s\n", logPath)
}

func archiveStatements(w io.Writer, a *app, fm *utils.FileManager, files []types.FileMeta) {
	for _, f := range files {
		archived, err := fm.ArchiveStatement(f.Path)
		if err != nil {
			a.log.Warn("failed to archive statement", "file", f.Name, "error", err)
			continue
		}
		fmt.Fprintf(w, "  archived %s -> %s\n", f.Name, archived)
	}
}
