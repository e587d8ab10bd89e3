// =============================================================================
// Invoice Reconciler - History Commands
// =============================================================================
//
// COMMAND USAGE:
//   reconciler history [--status saved] [--month 2024-03] [--limit 20]
//   reconciler show <session-id>
//   reconciler delete <session-id>
//
// =============================================================================

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-reconciler/internal/store"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		status string
		month  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List reconciliation sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filter := store.SessionFilter{Limit: limit}
			if status != "" {
				filter.Status = types.SessionStatus(status)
				if !filter.Status.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			if month != "" {
				m, err := types.ParseMonth(month)
				if err != nil {
					return err
				}
				filter.Month = m
			}

			if err := a.openStore(ctx); err != nil {
				return err
			}
			sessions, err := a.store.ListSessions(ctx, filter)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out(cmd), "No sessions found.")
				return nil
			}

			tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMONTH\tSTATUS\tSTARTED\tPROGRESS\tRECONCILED\tPENDING\tAMOUNT")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%d\t%d\t%s\n",
					s.ID,
					s.Data.ReconciliationMonth,
					s.Status,
					s.Date.Local().Format("2006-01-02 15:04"),
					s.Summary.ProgressPercentage,
					s.Summary.ReconciledCount,
					s.Summary.UnreconciledCount,
					s.Summary.ReconciledAmount.StringFixed(2),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only sessions with this status")
	cmd.Flags().StringVar(&month, "month", "", "Only sessions of this month (YYYY-MM)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of sessions (0 = all)")

	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session with its pending debits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.openStore(ctx); err != nil {
				return err
			}

			s, err := a.store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}

			w := out(cmd)
			fmt.Fprintf(w, "Month:              %s\n", s.Data.ReconciliationMonth)
			fmt.Fprintf(w, "Started:            %s\n", s.Date.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "Updated:            %s\n", s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "Progress:           %.0f%%\n", s.Summary.ProgressPercentage)
			printSummary(w, s)

			if len(s.Data.BankStatements) > 0 {
				fmt.Fprintln(w, "\nBank statements:")
				for _, f := range s.Data.BankStatements {
					fmt.Fprintf(w, "  %s (%s, %d bytes)\n", f.Name, f.Format, f.Size)
				}
			}
			printPending(w, s.PendingDebits())
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session that is not processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.openStore(ctx); err != nil {
				return err
			}

			s, err := a.store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			if s.Status == types.StatusProcessing {
				return fmt.Errorf("session %s is still processing", s.ID)
			}
			if err := a.store.DeleteSession(ctx, s.ID); err != nil {
				return err
			}

			a.log.Info("session deleted", "session", s.ID, "status", s.Status)
			fmt.Fprintf(out(cmd), "Session %s deleted\n", s.ID)
			return nil
		},
	}
}
