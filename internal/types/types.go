// =============================================================================
// Invoice Reconciler - Shared Types
// =============================================================================
//
// This package contains the domain records shared across modules to avoid
// import cycles. Types defined here are used by:
//   - matcher
//   - session
//   - source
//   - store
//   - report
//
// =============================================================================

package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BANK TRANSACTIONS
// =============================================================================

// TransactionType is the direction of a bank transaction.
type TransactionType string

const (
	// Debit is money leaving the account. Only debits are reconciled.
	Debit TransactionType = "debit"

	// Credit is money entering the account.
	Credit TransactionType = "credit"
)

// ParseTransactionType normalizes the vocabulary banks use in their exports.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debit", "d", "dr", "db", "withdrawal", "cargo", "out":
		return Debit, nil
	case "credit", "c", "cr", "deposit", "abono", "in":
		return Credit, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// BankTransaction is a single line of a bank statement.
type BankTransaction struct {
	// ID is unique within the data source that produced it.
	ID string `json:"id"`

	// Date is the booking date of the transaction.
	Date time.Time `json:"date"`

	// Description is the free-text label printed by the bank.
	Description string `json:"description"`

	// Amount is always positive; the direction lives in Type.
	Amount decimal.Decimal `json:"amount"`

	// Type is debit or credit.
	Type TransactionType `json:"type"`
}

// IsDebit reports whether the transaction participates in reconciliation.
func (t BankTransaction) IsDebit() bool {
	return t.Type == Debit
}

// =============================================================================
// INVOICES
// =============================================================================

// InvoiceStatus is the lifecycle state of a received invoice.
type InvoiceStatus string

const (
	InvoiceActive    InvoiceStatus = "active"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// ParseInvoiceStatus accepts the status spellings found in invoice ledgers.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active", "valid", "vigente", "1":
		return InvoiceActive, nil
	case "cancelled", "canceled", "cancelado", "void", "0":
		return InvoiceCancelled, nil
	}
	return "", fmt.Errorf("unknown invoice status %q", s)
}

// Invoice is the reconciliation-relevant subset of a received invoice.
type Invoice struct {
	UUID       string          `json:"uuid"`
	IssuerName string          `json:"issuerName"`
	Date       time.Time       `json:"date"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	Status     InvoiceStatus   `json:"status"`
}

// IsActive reports whether the invoice may be claimed by a transaction.
func (i Invoice) IsActive() bool {
	return i.Status == InvoiceActive
}

// FilterInvoices returns the invoices whose status is one of statuses, in
// their original order. With no statuses every invoice is returned.
func FilterInvoices(invoices []Invoice, statuses ...InvoiceStatus) []Invoice {
	if len(statuses) == 0 {
		return append([]Invoice(nil), invoices...)
	}
	out := make([]Invoice, 0, len(invoices))
	for _, inv := range invoices {
		for _, s := range statuses {
			if inv.Status == s {
				out = append(out, inv)
				break
			}
		}
	}
	return out
}

// =============================================================================
// FILE METADATA
// =============================================================================

// FileMeta describes a bank statement file submitted for a session.
type FileMeta struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Format     string    `json:"format"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
