// =============================================================================
// Invoice Reconciler - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   reconciler validate [--month 2024-03] [--statement file ...]
//
// Checks the configuration and every statement file without touching the
// store. Files are validated concurrently; each file is checked on its own,
// so duplicate ids across files are only reported by 'run'.
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-reconciler/internal/source"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
	"github.com/ginjaninja78/invoice-reconciler/pkg/utils"
)

// fileResult is the outcome of validating one statement file.
type fileResult struct {
	index int
	path  string
	batch *source.Batch
	err   error
}

func newValidateCmd(a *app) *cobra.Command {
	var (
		month      string
		statements []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the statement files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := out(cmd)
			cfg := a.cfg

			fmt.Fprintf(w, "Configuration OK (database: %s)\n", cfg.Database.Driver)

			var m types.Month
			if month != "" {
				parsed, err := types.ParseMonth(month)
				if err != nil {
					return err
				}
				m = parsed
			}

			paths := statements
			if len(paths) == 0 {
				fm := utils.NewFileManager(cfg.StatementsDir, cfg.OutputDir, cfg.StatementsArchiveDir)
				discovered, err := fm.DiscoverStatements()
				if err != nil {
					return err
				}
				paths = discovered
			}
			if len(paths) == 0 {
				fmt.Fprintf(w, "No statement files found in %s.\n", cfg.StatementsDir)
				return nil
			}

			// One goroutine per file; results are collected and printed in
			// the order the files were given.
			var wg sync.WaitGroup
			results := make(chan fileResult, len(paths))

			for i, path := range paths {
				wg.Add(1)
				go func(i int, path string) {
					defer wg.Done()
					files := source.NewStatementFiles([]string{path}, cfg.Statements, source.StatementOptions{Logger: a.log})
					batch, err := files.Load(ctx, m)
					results <- fileResult{index: i, path: path, batch: batch, err: err}
				}(i, path)
			}

			go func() {
				wg.Wait()
				close(results)
			}()

			collected := make([]fileResult, 0, len(paths))
			for r := range results {
				collected = append(collected, r)
			}
			sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

			failed := 0
			for _, r := range collected {
				name := filepath.Base(r.path)
				if r.err != nil {
					failed++
					fmt.Fprintf(w, "  ✗ %s: %v\n", name, r.err)
					if r.batch != nil {
						reportValidation(w, cfg.OutputDir, "statement_"+strings.TrimSuffix(name, filepath.Ext(name)), r.batch.Result)
					}
					continue
				}
				fmt.Fprintf(w, "  ✓ %s: %d row(s), %d transaction(s) in range, %d warning(s)\n",
					name, r.batch.Result.RowsValidated, len(r.batch.Transactions), r.batch.Result.WarningCount)
			}

			fmt.Fprintf(w, "\nFiles: %d, valid: %d, failed: %d\n", len(collected), len(collected)-failed, failed)
			if failed > 0 {
				return fmt.Errorf("%d statement file(s) failed validation", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Only count transactions of this month (YYYY-MM)")
	cmd.Flags().StringSliceVar(&statements, "statement", nil, "Statement file to check (repeatable); default: every file in statements_dir")

	return cmd
}
