// =============================================================================
// Invoice Reconciler - Reports
// =============================================================================
//
// This package renders a reconciliation session for people and for the
// accounting system downstream:
//
//   xml.go   XML reconciliation report (plus its XSD)
//   xlsx.go  Excel workbook with a Summary and a Transactions sheet
//
// Both writers work from the same list of report lines: one per transaction,
// in session order, with the invoice it was matched to.
//
// =============================================================================

package report

import (
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// Line states.
const (
	StateMatched = "matched"
	StatePending = "pending"

	// StateCredit marks credits, which are never reconciled.
	StateCredit = "credit"
)

// Line is one transaction of a report.
type Line struct {
	// Index is 1-based, in session order.
	Index       int
	Transaction types.BankTransaction
	State       string

	// InvoiceUUID is set for matched lines.
	InvoiceUUID string

	// Invoice holds the invoice details when the matched invoice is among
	// the invoices handed to the report. Nil otherwise.
	Invoice *types.Invoice
}

// Lines builds the report lines of a session. Invoices are only used to add
// details to matched lines and may be nil.
func Lines(session types.Session, invoices []types.Invoice) []Line {
	byUUID := make(map[string]*types.Invoice, len(invoices))
	for i := range invoices {
		byUUID[invoices[i].UUID] = &invoices[i]
	}

	lines := make([]Line, 0, len(session.Data.Transactions))
	for i, tx := range session.Data.Transactions {
		line := Line{Index: i + 1, Transaction: tx, State: StatePending}

		switch invoiceUUID, matched := session.Data.ReconciliationMap[tx.ID]; {
		case !tx.IsDebit():
			line.State = StateCredit
		case matched:
			line.State = StateMatched
			line.InvoiceUUID = invoiceUUID
			if inv, ok := byUUID[invoiceUUID]; ok {
				copied := *inv
				line.Invoice = &copied
			}
		}

		lines = append(lines, line)
	}
	return lines
}
