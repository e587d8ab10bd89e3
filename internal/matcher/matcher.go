// =============================================================================
// Invoice Reconciler - Matcher
// =============================================================================
//
// The matcher pairs debit bank transactions with received invoices for one
// calendar month. The single matching predicate is exact equality between the
// transaction amount and the invoice total.
//
// ALGORITHM:
//   1. The candidate pool starts as the month's active invoices, in the order
//      the data source returned them.
//   2. Transactions are visited in input order. Credits and non-positive
//      amounts are skipped.
//   3. For a debit, the pool is scanned front to back; the first invoice
//      whose total equals the amount is claimed and removed from the pool.
//   4. A debit without a candidate stays pending and is not revisited.
//
// This is a stable greedy choice, not an optimal assignment: it does not try
// to minimize leftovers, prefer closer dates, or check currencies
// (transactions carry no currency).
//
// =============================================================================

package matcher

import (
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// Matcher holds the state of one matching run. It is not safe for concurrent
// use; the session tracker drives it from a single goroutine.
type Matcher struct {
	pool    []types.Invoice
	matches types.ReconciliationMap
}

// New creates a matcher whose pool is the active subset of invoices.
func New(invoices []types.Invoice) *Matcher {
	return NewWithMatches(invoices, nil)
}

// NewWithMatches creates a matcher that continues from existing pairs: the
// transactions already mapped are never matched again and the invoices they
// claimed are left out of the pool.
func NewWithMatches(invoices []types.Invoice, existing types.ReconciliationMap) *Matcher {
	claimed := existing.Claimed()
	pool := make([]types.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.IsActive() || claimed[inv.UUID] {
			continue
		}
		pool = append(pool, inv)
	}

	matches := existing.Clone()
	return &Matcher{pool: pool, matches: matches}
}

// Step evaluates a single transaction and returns the uuid of the invoice it
// claimed. ok is false when the transaction is not a debit with a positive
// amount, is already matched, or no unclaimed invoice has the same total.
func (m *Matcher) Step(tx types.BankTransaction) (invoiceUUID string, ok bool) {
	if !tx.IsDebit() || !tx.Amount.IsPositive() {
		return "", false
	}
	if _, done := m.matches[tx.ID]; done {
		return "", false
	}

	for i, inv := range m.pool {
		if !inv.Total.Equal(tx.Amount) {
			continue
		}
		m.matches[tx.ID] = inv.UUID
		m.pool = append(m.pool[:i], m.pool[i+1:]...)
		return inv.UUID, true
	}
	return "", false
}

// Run steps through every transaction in order.
func (m *Matcher) Run(transactions []types.BankTransaction) {
	for _, tx := range transactions {
		m.Step(tx)
	}
}

// unclaimed returns the invoices still in the pool, in pool order.
func (m *Matcher) unclaimed() []types.Invoice {
	return append([]types.Invoice(nil), m.pool...)
}

// Match is the one-shot form of a run.
func Match(transactions []types.BankTransaction, invoices []types.Invoice) types.ReconciliationMap {
	m := New(invoices)
	m.Run(transactions)
	return m.matches.Clone()
}
