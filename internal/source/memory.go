package source

import (
	"context"
	"sync"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// Memory is an in-memory source of both transactions and invoices. It keeps
// the insertion order. Safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	transactions []types.BankTransaction
	invoices     []types.Invoice
}

// NewMemory creates a memory source holding copies of the given records.
func NewMemory(transactions []types.BankTransaction, invoices []types.Invoice) *Memory {
	return &Memory{
		transactions: append([]types.BankTransaction(nil), transactions...),
		invoices:     append([]types.Invoice(nil), invoices...),
	}
}

// ListTransactions implements TransactionSource.
func (m *Memory) ListTransactions(ctx context.Context, month types.Month) ([]types.BankTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.BankTransaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		if inMonth(month, tx.Date) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// ListInvoices implements InvoiceSource.
func (m *Memory) ListInvoices(ctx context.Context, month types.Month, statuses ...types.InvoiceStatus) ([]types.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Invoice, 0, len(m.invoices))
	for _, inv := range types.FilterInvoices(m.invoices, statuses...) {
		if inMonth(month, inv.Date) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// AddInvoices appends invoices, keeping the existing order.
func (m *Memory) AddInvoices(invoices ...types.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = append(m.invoices, invoices...)
}

// SetInvoiceStatus changes the status of an invoice in place. It reports
// whether the invoice exists.
func (m *Memory) SetInvoiceStatus(uuid string, status types.InvoiceStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.invoices {
		if m.invoices[i].UUID == uuid {
			m.invoices[i].Status = status
			return true
		}
	}
	return false
}
