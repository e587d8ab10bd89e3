package validation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

func statementFormat(signed bool) config.StatementFormat {
	return config.StatementFormat{
		Columns: config.StatementColumns{
			ID: "id", Date: "date", Description: "description", Amount: "amount", Type: "type",
		},
		DateLayout:    "2006-01-02",
		SignedAmounts: signed,
	}
}

func invoiceFormat() config.InvoiceFormat {
	return config.InvoiceFormat{
		Columns: config.InvoiceColumns{
			UUID: "uuid", IssuerName: "issuer_name", Date: "date", Total: "total",
			Currency: "currency", Status: "status",
		},
		DateLayout:      "2006-01-02",
		DefaultCurrency: "MXN",
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		sep  string
		want string
	}{
		{"100", ".", "100"},
		{"100.00", ".", "100"},
		{"1,234.56", ".", "1234.56"},
		{"1,234,567.8", "", "1234567.8"},
		{"$ 1,234.56", ".", "1234.56"},
		{"-1234.56", ".", "-1234.56"},
		{"(1,234.56)", ".", "-1234.56"},
		{"1234.56 MXN", ".", "1234.56"},
		{"USD 10", ".", "10"},
		{"1.234,56", ",", "1234.56"},
		{"-12,5", ",", "-12.5"},
		{"€ 1.000", ",", "1000"},
		{"(1.234.567,00)", ",", "-1234567"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, tt.sep)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}

	bad := []struct {
		raw string
		sep string
	}{
		{"", "."},
		{"abc", "."},
		{"(-5)", "."},
		{"1.2.3", "."},
		{"1.234,56", "."},
		{"1,23", "."},
		{"12,34,567.00", "."},
		{"1,234.56", ","},
		{"1,2,3", ","},
	}
	for _, tt := range bad {
		_, err := ParseAmount(tt.raw, tt.sep)
		assert.Error(t, err, "%s with separator %q", tt.raw, tt.sep)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("15/03/2024", "02/01/2006")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("2024-03-15", "02/01/2006")
	require.NoError(t, err)
	assert.Equal(t, 15, got.Day())

	// Excel serial for 2024-03-15.
	got, err = ParseDate("45366", "2006-01-02")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got.Format("2006-01-02"))

	_, err = ParseDate("yesterday", "2006-01-02")
	assert.Error(t, err)
}

func TestStatementMapper_Map(t *testing.T) {
	records := []Record{
		{Row: 2, Fields: map[string]string{"id": "T1", "date": "2024-03-01", "description": "Rent", "amount": "1,000.00", "type": "DR"}},
		{Row: 3, Fields: map[string]string{"ID": "T2", "Date": "2024-03-02", "Amount": "50", "Type": "credit"}},
		{Row: 4, Fields: map[string]string{"id": "T1", "date": "2024-03-03", "amount": "5", "type": "debit"}},
		{Row: 5, Fields: map[string]string{"id": "T3", "date": "bad", "amount": "x", "type": "sideways"}},
	}

	txs, result := NewStatementMapper(statementFormat(false)).Map(records, "march.csv")

	require.Len(t, txs, 2)
	assert.Equal(t, "T1", txs[0].ID)
	assert.Equal(t, types.Debit, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "Rent", txs[0].Description)
	assert.Equal(t, types.Credit, txs[1].Type)

	assert.False(t, result.IsValid)
	assert.Equal(t, 4, result.RowsValidated)
	assert.Equal(t, 2, result.RowsAccepted)
	assert.Equal(t, 4, result.ErrorCount) // duplicate id + date + amount + type
	require.Error(t, result.Err())
	assert.Contains(t, result.Err().Error(), "Duplicate transaction id")
}

func TestStatementMapper_SignedAmounts(t *testing.T) {
	records := []Record{
		{Row: 2, Fields: map[string]string{"id": "T1", "date": "2024-03-01", "amount": "-250.10"}},
		{Row: 3, Fields: map[string]string{"id": "T2", "date": "2024-03-01", "amount": "99"}},
	}

	txs, result := NewStatementMapper(statementFormat(true)).Map(records, "march.csv")

	require.True(t, result.IsValid, FormatErrors(result.Errors))
	require.Len(t, txs, 2)
	assert.Equal(t, types.Debit, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("250.10")))
	assert.Equal(t, types.Credit, txs[1].Type)
}

func TestStatementMapper_ZeroAmount(t *testing.T) {
	records := []Record{
		{Row: 2, Fields: map[string]string{"id": "T1", "date": "2024-03-01", "amount": "0", "type": "debit"}},
		{Row: 3, Fields: map[string]string{"id": "T2", "date": "2024-03-01", "amount": "0.00", "type": "credit"}},
		{Row: 4, Fields: map[string]string{"id": "T3", "date": "2024-03-01", "amount": "10", "type": "debit"}},
	}

	txs, result := NewStatementMapper(statementFormat(false)).Map(records, "march.csv")

	require.Len(t, txs, 1)
	assert.Equal(t, "T3", txs[0].ID)
	assert.False(t, result.IsValid)
	assert.Equal(t, 2, result.ErrorCount)
	assert.Equal(t, 0, result.WarningCount)
	assert.Equal(t, "amount", result.Errors[0].Field)
	assert.Contains(t, result.Errors[0].Message, "greater than zero")
}

func TestStatementMapper_DecimalComma(t *testing.T) {
	format := statementFormat(false)
	format.DecimalSeparator = ","
	records := []Record{
		{Row: 2, Fields: map[string]string{"id": "T1", "date": "2024-03-01", "amount": "1.234,56", "type": "debit"}},
		{Row: 3, Fields: map[string]string{"id": "T2", "date": "2024-03-01", "amount": "1,234.56", "type": "debit"}},
	}

	txs, result := NewStatementMapper(format).Map(records, "march.csv")

	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, 1, result.ErrorCount, "the other convention is rejected, not misread")
	assert.Equal(t, 3, result.Errors[0].RowNumber)
}

func TestStatementMapper_MissingTypeWithoutSignedAmounts(t *testing.T) {
	records := []Record{
		{Row: 2, Fields: map[string]string{"id": "T1", "date": "2024-03-01", "amount": "-10"}},
	}

	txs, result := NewStatementMapper(statementFormat(false)).Map(records, "march.csv")
	assert.Empty(t, txs)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, "type", result.Errors[0].Field)
}

func TestInvoiceMapper_Map(t *testing.T) {
	records := []Record{
		{Row: 2, Fields: map[string]string{"uuid": "6F9619FF-8B86-D011-B42D-00C04FC964FF", "issuer_name": "ACME", "date": "2024-03-05", "total": "1,160.00", "status": "vigente"}},
		{Row: 3, Fields: map[string]string{"uuid": "F-0002", "date": "2024-03-06", "total": "80", "currency": "usd", "status": "cancelado"}},
		{Row: 4, Fields: map[string]string{"uuid": "F-0003", "date": "2024-03-06", "total": "-1"}},
		{Row: 5, Fields: map[string]string{"uuid": "F-0004", "date": "2024-03-06", "total": "1", "status": "lost"}},
		{Row: 6, Fields: map[string]string{"uuid": "F-0005", "date": "2024-03-06", "total": "0.00", "status": "active"}},
	}

	invoices, result := NewInvoiceMapper(invoiceFormat()).Map(records, "ledger.xlsx")

	require.Len(t, invoices, 2)
	assert.Equal(t, "ACME", invoices[0].IssuerName)
	assert.Equal(t, "MXN", invoices[0].Currency)
	assert.Equal(t, types.InvoiceActive, invoices[0].Status)
	assert.True(t, invoices[0].Total.Equal(decimal.NewFromInt(1160)))

	assert.Equal(t, "USD", invoices[1].Currency)
	assert.Equal(t, types.InvoiceCancelled, invoices[1].Status)

	// Negative total, unknown status, zero total.
	assert.Equal(t, 3, result.ErrorCount)
	assert.Contains(t, FormatErrors(result.Errors), "Invoice total must be greater than zero")
	// Non-canonical uuids on rows 3 to 6.
	assert.Equal(t, 4, result.WarningCount)
}

func TestInvoiceMapper_MissingColumn(t *testing.T) {
	records := []Record{{Row: 2, Fields: map[string]string{"uuid": "A", "date": "2024-03-01"}}}

	_, result := NewInvoiceMapper(invoiceFormat()).Map(records, "ledger.csv")
	require.False(t, result.IsValid)
	assert.Contains(t, FormatErrors(result.Errors), "Column 'total' not found")
}

func TestRecords(t *testing.T) {
	recs := Records([]map[string]string{{"a": "1"}, {"a": "2"}}, []int{5})
	assert.Equal(t, 5, recs[0].Row)
	assert.Equal(t, 3, recs[1].Row)
}

func TestValidationResult_Merge(t *testing.T) {
	a := NewResult()
	b := NewResult()
	b.Add(&ValidationError{Severity: SeverityError})
	b.RowsValidated = 3

	a.Merge(b)
	a.Merge(nil)
	assert.False(t, a.IsValid)
	assert.Equal(t, 1, a.ErrorCount)
	assert.Equal(t, 3, a.RowsValidated)
}

func TestWriteErrorLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "errors.log")
	errs := []*ValidationError{{Severity: SeverityError, SourceFile: "/in/march.csv", RowNumber: 7, Field: "amount", Value: "x", Message: "bad"}}

	require.NoError(t, WriteErrorLog(errs, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[ERROR] march.csv row 7, Field 'amount': bad (value: 'x')")
	assert.Equal(t, "No validation errors.", FormatErrors(nil))
}
