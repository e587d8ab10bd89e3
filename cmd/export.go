// =============================================================================
// Invoice Reconciler - Export Command
// =============================================================================
//
// COMMAND USAGE:
//   reconciler export <session-id> [--format xml|xlsx] [--out path] [--xsd]
//
// The report file name follows report_name_format in the output directory
// unless --out is given. Matched transactions carry the invoice details
// found in the ledger, whatever the invoice's current status.
//
// =============================================================================

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-reconciler/internal/report"
	"github.com/ginjaninja78/invoice-reconciler/pkg/utils"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format  string
		outPath string
		withXSD bool
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a session report as XML or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			format = strings.ToLower(format)
			if format != "xml" && format != "xlsx" {
				return fmt.Errorf("unsupported format %q (want xml or xlsx)", format)
			}

			if err := a.openStore(ctx); err != nil {
				return err
			}
			s, err := a.store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			invoices, err := a.invoices.ListInvoices(ctx, s.Data.ReconciliationMonth)
			if err != nil {
				return fmt.Errorf("failed to load invoice details: %w", err)
			}

			var buf bytes.Buffer
			switch format {
			case "xml":
				data, err := report.GenerateXML(s, invoices)
				if err != nil {
					return err
				}
				buf.Write(data)
			case "xlsx":
				if err := report.WriteXLSX(&buf, s, invoices); err != nil {
					return err
				}
			}

			if outPath == "" {
				name := utils.GenerateReportFileName(a.cfg.ReportNameFormat, format, map[string]string{
					"month":   s.Data.ReconciliationMonth.String(),
					"session": s.ID,
				})
				outPath = filepath.Join(a.cfg.OutputDir, name)
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Fprintf(out(cmd), "Report written to %s\n", outPath)

			if withXSD && format == "xml" {
				xsdPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".xsd"
				if err := os.WriteFile(xsdPath, report.GenerateXSD(), 0644); err != nil {
					return fmt.Errorf("failed to write schema: %w", err)
				}
				fmt.Fprintf(out(cmd), "Schema written to %s\n", xsdPath)
			}

			a.log.Info("report exported", "session", s.ID, "format", format, "path", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "xml", "Report format: xml or xlsx")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default: output_dir/report_name_format)")
	cmd.Flags().BoolVar(&withXSD, "xsd", false, "Also write the XML schema next to an XML report")

	return cmd
}
