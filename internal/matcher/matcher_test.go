package matcher

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

func debit(id, amount string) types.BankTransaction {
	return types.BankTransaction{ID: id, Amount: decimal.RequireFromString(amount), Type: types.Debit}
}

func credit(id, amount string) types.BankTransaction {
	return types.BankTransaction{ID: id, Amount: decimal.RequireFromString(amount), Type: types.Credit}
}

func invoice(uuid, total string, status types.InvoiceStatus) types.Invoice {
	return types.Invoice{UUID: uuid, Total: decimal.RequireFromString(total), Currency: "MXN", Status: status}
}

func TestMatch_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		transactions []types.BankTransaction
		invoices     []types.Invoice
		want         types.ReconciliationMap
	}{
		{
			name:         "cross order exact amounts",
			transactions: []types.BankTransaction{debit("t1", "100"), debit("t2", "250")},
			invoices:     []types.Invoice{invoice("i1", "250", types.InvoiceActive), invoice("i2", "100", types.InvoiceActive)},
			want:         types.ReconciliationMap{"t1": "i2", "t2": "i1"},
		},
		{
			name:         "one cent off never matches",
			transactions: []types.BankTransaction{debit("t1", "100")},
			invoices:     []types.Invoice{invoice("i1", "99.99", types.InvoiceActive)},
			want:         types.ReconciliationMap{},
		},
		{
			name:         "tie goes to the earliest invoice",
			transactions: []types.BankTransaction{debit("t1", "100")},
			invoices:     []types.Invoice{invoice("i1", "100", types.InvoiceActive), invoice("i2", "100", types.InvoiceActive)},
			want:         types.ReconciliationMap{"t1": "i1"},
		},
		{
			name:         "credit is ineligible",
			transactions: []types.BankTransaction{credit("t1", "100")},
			invoices:     []types.Invoice{invoice("i1", "100", types.InvoiceActive)},
			want:         types.ReconciliationMap{},
		},
		{
			name:         "cancelled invoice is ineligible",
			transactions: []types.BankTransaction{debit("t1", "100")},
			invoices:     []types.Invoice{invoice("i1", "100", types.InvoiceCancelled)},
			want:         types.ReconciliationMap{},
		},
		{
			name:         "invoice claimed at most once",
			transactions: []types.BankTransaction{debit("t1", "100"), debit("t2", "100")},
			invoices:     []types.Invoice{invoice("i1", "100", types.InvoiceActive)},
			want:         types.ReconciliationMap{"t1": "i1"},
		},
		{
			name:         "trailing zeros compare by value",
			transactions: []types.BankTransaction{debit("t1", "100.00")},
			invoices:     []types.Invoice{invoice("i1", "100", types.InvoiceActive)},
			want:         types.ReconciliationMap{"t1": "i1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.transactions, tt.invoices)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_InputOrderDecides(t *testing.T) {
	invoices := []types.Invoice{invoice("i1", "50", types.InvoiceActive)}

	first := Match([]types.BankTransaction{debit("a", "50"), debit("b", "50")}, invoices)
	second := Match([]types.BankTransaction{debit("b", "50"), debit("a", "50")}, invoices)

	assert.Equal(t, types.ReconciliationMap{"a": "i1"}, first)
	assert.Equal(t, types.ReconciliationMap{"b": "i1"}, second)
}

func TestMatcher_StepReportsClaims(t *testing.T) {
	m := New([]types.Invoice{
		invoice("i1", "10", types.InvoiceActive),
		invoice("i2", "20", types.InvoiceActive),
	})

	uuid, ok := m.Step(debit("t1", "20"))
	require.True(t, ok)
	assert.Equal(t, "i2", uuid)

	_, ok = m.Step(debit("t1", "10"))
	assert.False(t, ok, "an already matched transaction is not matched twice")

	_, ok = m.Step(credit("t2", "10"))
	assert.False(t, ok)

	unclaimed := m.unclaimed()
	require.Len(t, unclaimed, 1)
	assert.Equal(t, "i1", unclaimed[0].UUID)
}

func TestNewWithMatches_ContinuesRun(t *testing.T) {
	invoices := []types.Invoice{
		invoice("i1", "100", types.InvoiceActive),
		invoice("i2", "100", types.InvoiceActive),
	}
	m := NewWithMatches(invoices, types.ReconciliationMap{"t1": "i1"})
	m.Run([]types.BankTransaction{debit("t1", "100"), debit("t2", "100")})

	assert.Equal(t, types.ReconciliationMap{"t1": "i1", "t2": "i2"}, m.matches)
	assert.Empty(t, m.unclaimed())
}

func TestMatch_NonPositiveAmountsNeverMatch(t *testing.T) {
	got := Match(
		[]types.BankTransaction{debit("t1", "0"), debit("t2", "0.00"), debit("t3", "-5")},
		[]types.Invoice{
			invoice("i1", "0", types.InvoiceActive),
			invoice("i2", "-5", types.InvoiceActive),
		},
	)
	assert.Empty(t, got)
}

func TestMatch_Invariants(t *testing.T) {
	var transactions []types.BankTransaction
	var invoices []types.Invoice
	for i := 0; i < 60; i++ {
		amount := fmt.Sprintf("%d.%02d", 10+i%7, (i*13)%100)
		if i%5 == 0 {
			transactions = append(transactions, credit(fmt.Sprintf("t%d", i), amount))
		} else {
			transactions = append(transactions, debit(fmt.Sprintf("t%d", i), amount))
		}

		status := types.InvoiceActive
		if i%4 == 0 {
			status = types.InvoiceCancelled
		}
		invoices = append(invoices, invoice(fmt.Sprintf("i%d", (i*7)%60), amount, status))
	}

	got := Match(transactions, invoices)
	require.NotEmpty(t, got)

	txByID := map[string]types.BankTransaction{}
	for _, tx := range transactions {
		txByID[tx.ID] = tx
	}
	invByID := map[string]types.Invoice{}
	for _, inv := range invoices {
		invByID[inv.UUID] = inv
	}

	seen := map[string]bool{}
	for txID, invUUID := range got {
		assert.False(t, seen[invUUID], "invoice %s claimed twice", invUUID)
		seen[invUUID] = true

		tx := txByID[txID]
		inv := invByID[invUUID]
		assert.Equal(t, types.Debit, tx.Type)
		assert.Equal(t, types.InvoiceActive, inv.Status)
		assert.True(t, tx.Amount.Equal(inv.Total), "%s=%s vs %s=%s", txID, tx.Amount, invUUID, inv.Total)
	}
}
