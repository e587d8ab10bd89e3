// =============================================================================
// Invoice Reconciler - Invoice Ledger Commands
// =============================================================================
//
// COMMAND USAGE:
//   reconciler invoices import <file> [--skip-invalid]
//   reconciler invoices list [--month 2024-03] [--status active]
//   reconciler invoices cancel <uuid>
//
// Imported invoices are upserted by uuid; re-importing a ledger refreshes
// the stored fields and keeps each invoice's position in the ledger order,
// which decides ties between invoices of the same amount.
//
// =============================================================================

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-reconciler/internal/source"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

func newInvoicesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Manage the invoice ledger",
	}
	cmd.AddCommand(newInvoicesImportCmd(a), newInvoicesListCmd(a), newInvoicesCancelCmd(a))
	return cmd
}

func newInvoicesImportCmd(a *app) *cobra.Command {
	var skipInvalid bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an invoice ledger export (CSV or XLSX)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := out(cmd)

			invoices, result, err := source.ReadInvoiceFile(args[0], a.cfg.Invoices)
			if err != nil {
				return err
			}
			if result.ErrorCount > 0 || result.WarningCount > 0 {
				reportValidation(w, a.cfg.OutputDir, "invoices", result)
			}
			if !result.IsValid && !(skipInvalid || a.cfg.Processing.SkipInvalidRows) {
				return result.Err()
			}

			if err := a.openStore(ctx); err != nil {
				return err
			}
			n, err := a.store.UpsertInvoices(ctx, invoices)
			if err != nil {
				return err
			}

			a.log.Info("invoices imported", "file", args[0], "count", n, "skipped", result.RowsValidated-result.RowsAccepted)
			fmt.Fprintf(w, "Imported %d invoice(s) from %s\n", n, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipInvalid, "skip-invalid", false, "Import the valid rows even when some rows fail validation")
	return cmd
}

func newInvoicesListCmd(a *app) *cobra.Command {
	var month, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger invoices in ledger order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var m types.Month
			if month != "" {
				parsed, err := types.ParseMonth(month)
				if err != nil {
					return err
				}
				m = parsed
			}
			var statuses []types.InvoiceStatus
			if status != "" {
				st, err := types.ParseInvoiceStatus(status)
				if err != nil {
					return err
				}
				statuses = append(statuses, st)
			}

			if err := a.openStore(ctx); err != nil {
				return err
			}
			invoices, err := a.store.ListInvoices(ctx, m, statuses...)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "UUID\tISSUER\tDATE\tTOTAL\tCURRENCY\tSTATUS")
			for _, inv := range invoices {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					inv.UUID, inv.IssuerName, inv.Date.Format("2006-01-02"), inv.Total.StringFixed(2), inv.Currency, inv.Status)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Only invoices of this month (YYYY-MM)")
	cmd.Flags().StringVar(&status, "status", "", "Only invoices with this status (active, cancelled)")
	return cmd
}

func newInvoicesCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <uuid>",
		Short: "Mark an invoice as cancelled so it is never matched again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.openStore(ctx); err != nil {
				return err
			}
			if err := a.store.SetInvoiceStatus(ctx, args[0], types.InvoiceCancelled); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Invoice %s cancelled\n", args[0])
			return nil
		},
	}
}
