package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// Sheet names of the exported workbook.
const (
	SummarySheet      = "Summary"
	TransactionsSheet = "Transactions"
)

var transactionHeaders = []interface{}{
	"#", "Transaction", "Date", "Type", "Amount", "Description",
	"State", "Invoice", "Issuer", "Invoice Date", "Invoice Total", "Currency",
}

// numFmtAmount is the built-in "#,##0.00" number format.
const numFmtAmount = 4

// WriteXLSX renders the session as an Excel workbook and writes it to w.
func WriteXLSX(w io.Writer, session types.Session, invoices []types.Invoice) error {
	f, err := BuildWorkbook(session, invoices)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// BuildWorkbook creates the workbook with a Summary and a Transactions
// sheet. The caller must close it.
func BuildWorkbook(session types.Session, invoices []types.Invoice) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeSummarySheet(f, session); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(TransactionsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create transactions sheet: %w", err)
	}
	if err := writeTransactionsSheet(f, Lines(session, invoices)); err != nil {
		f.Close()
		return nil, err
	}

	f.SetActiveSheet(0)
	return f, nil
}

// =============================================================================
// SUMMARY SHEET
// =============================================================================

func writeSummarySheet(f *excelize.File, session types.Session) error {
	s := session.Summary
	rows := [][]interface{}{
		{"Session", session.ID},
		{"Month", session.Data.ReconciliationMonth.String()},
		{"Status", string(session.Status)},
		{"Started", session.Date.UTC().Format("2006-01-02 15:04:05")},
		{"Updated", session.UpdatedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Transactions", s.TotalTransactions},
		{"Debit transactions", s.TotalDebitTransactions},
		{"Reconciled", s.ReconciledCount},
		{"Unreconciled", s.UnreconciledCount},
		{"Progress (%)", s.ProgressPercentage},
		{"Reconciled amount", s.ReconciledAmount.InexactFloat64()},
	}
	if len(session.Data.BankStatements) > 0 {
		rows = append(rows, []interface{}{}, []interface{}{"Bank statements"})
		for _, meta := range session.Data.BankStatements {
			rows = append(rows, []interface{}{meta.Name, meta.Format, meta.Size})
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}

	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "A11", labelStyle); err != nil {
		return err
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: numFmtAmount})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(SummarySheet, "B11", "B11", amountStyle); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "A", 22)
}

// =============================================================================
// TRANSACTIONS SHEET
// =============================================================================

func writeTransactionsSheet(f *excelize.File, lines []Line) error {
	sheet := TransactionsSheet

	if err := f.SetSheetRow(sheet, "A1", &transactionHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, line := range lines {
		tx := line.Transaction
		row := []interface{}{
			line.Index,
			tx.ID,
			tx.Date.Format(dateLayout),
			string(tx.Type),
			tx.Amount.InexactFloat64(),
			tx.Description,
			line.State,
			line.InvoiceUUID,
			nil, nil, nil, nil,
		}
		if inv := line.Invoice; inv != nil {
			row[8] = inv.IssuerName
			row[9] = inv.Date.Format(dateLayout)
			row[10] = inv.Total.InexactFloat64()
			row[11] = inv.Currency
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write transaction %s: %w", tx.ID, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(transactionHeaders))
	if err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	if len(lines) > 0 {
		amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: numFmtAmount})
		if err != nil {
			return fmt.Errorf("failed to create style: %w", err)
		}
		last := len(lines) + 1
		if err := f.SetCellStyle(sheet, "E2", fmt.Sprintf("E%d", last), amountStyle); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "K2", fmt.Sprintf("K%d", last), amountStyle); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheet, "B", "B", 18); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "F", "F", 40); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "H", "I", 38); err != nil {
		return err
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	return f.AutoFilter(sheet, "A1:"+lastCol+"1", nil)
}
