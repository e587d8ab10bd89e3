// =============================================================================
// Invoice Reconciler - Data Sources
// =============================================================================
//
// A session needs two inputs for its month: the bank transactions and the
// received invoices. This package defines where they come from:
//
//   TransactionSource   bank statement lines (statement files, memory)
//   InvoiceSource       invoices (the store, memory), optionally wrapped in
//                       Retrying for bounded retries with backoff
//
// Both return records in a stable order. The matcher's tie-break rule (the
// earliest invoice wins) depends on that order, so implementations must not
// reorder between calls.
//
// =============================================================================

package source

import (
	"context"
	"time"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// TransactionSource provides the bank transactions of a month.
type TransactionSource interface {
	// ListTransactions returns the month's transactions in statement order.
	// A zero month returns every transaction.
	ListTransactions(ctx context.Context, month types.Month) ([]types.BankTransaction, error)
}

// InvoiceSource provides the invoices of a month.
type InvoiceSource interface {
	// ListInvoices returns the month's invoices whose status is one of
	// statuses (all statuses when none are given), in a stable order.
	ListInvoices(ctx context.Context, month types.Month, statuses ...types.InvoiceStatus) ([]types.Invoice, error)
}

// InvoiceSourceFunc adapts a function to InvoiceSource.
type InvoiceSourceFunc func(ctx context.Context, month types.Month, statuses ...types.InvoiceStatus) ([]types.Invoice, error)

// ListInvoices calls f.
func (f InvoiceSourceFunc) ListInvoices(ctx context.Context, month types.Month, statuses ...types.InvoiceStatus) ([]types.Invoice, error) {
	return f(ctx, month, statuses...)
}

// inMonth treats the zero month as "every month".
func inMonth(month types.Month, t time.Time) bool {
	return month.IsZero() || month.Contains(t)
}
