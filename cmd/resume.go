// =============================================================================
// Invoice Reconciler - Resume Command
// =============================================================================
//
// COMMAND USAGE:
//   reconciler resume <session-id> [--auto] [--match TX=INVOICE ...]
//
// Reopens a saved, cancelled or failed session, re-fetches the month's
// active invoices and saves it back under the same id. --auto runs the
// matcher over the pending debits; --match pairs a debit with an invoice by
// hand (the amounts must be equal). Without either flag the session is
// re-saved as is, which only refreshes its summary.
//
// Completed sessions cannot be resumed.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-reconciler/internal/session"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

func newResumeCmd(a *app) *cobra.Command {
	var (
		auto    bool
		matches []string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a session that is not completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := out(cmd)

			pairs, err := parseMatches(matches)
			if err != nil {
				return err
			}
			if err := a.openStore(ctx); err != nil {
				return err
			}

			work, err := a.continuation.Resume(ctx, args[0])
			if err != nil {
				return err
			}

			before := work.Session()
			fmt.Fprintf(w, "Resumed session %s (%s, %s): %d pending debit(s), %d unclaimed invoice(s)\n",
				before.ID, before.Data.ReconciliationMonth, before.Status, len(work.Pending()), len(work.Unclaimed()))

			for _, p := range pairs {
				if err := work.Match(p[0], p[1]); err != nil {
					return err
				}
				fmt.Fprintf(w, "  matched %s -> %s\n", p[0], p[1])
			}
			if auto {
				fmt.Fprintf(w, "  auto-matched %d transaction(s)\n", work.AutoMatch())
			}

			if dryRun {
				printPending(w, work.Pending())
				fmt.Fprintln(w, "Dry run: nothing saved.")
				return nil
			}

			saved, err := work.Save(ctx)
			if err != nil {
				return err
			}
			printSummary(w, saved)
			printPending(w, saved.PendingDebits())
			return nil
		},
	}

	cmd.Flags().BoolVar(&auto, "auto", false, "Run the matcher over the pending debits")
	cmd.Flags().StringArrayVar(&matches, "match", nil, "Manual pair TRANSACTION_ID=INVOICE_UUID (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the outcome without saving")

	return cmd
}

// parseMatches splits TX=INVOICE pairs.
func parseMatches(raw []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(raw))
	for _, r := range raw {
		tx, inv, ok := strings.Cut(r, "=")
		tx, inv = strings.TrimSpace(tx), strings.TrimSpace(inv)
		if !ok || tx == "" || inv == "" {
			return nil, fmt.Errorf("invalid --match %q: want TRANSACTION_ID=INVOICE_UUID: %w", r, session.ErrIneligibleMatch)
		}
		pairs = append(pairs, [2]string{tx, inv})
	}
	return pairs, nil
}

func printPending(w io.Writer, pending []types.BankTransaction) {
	if len(pending) == 0 {
		return
	}
	fmt.Fprintln(w, "\nPending debits:")
	for _, tx := range pending {
		fmt.Fprintf(w, "  %-20s %s %12s  %s\n", tx.ID, tx.Date.Format("2006-01-02"), tx.Amount.StringFixed(2), tx.Description)
	}
}
