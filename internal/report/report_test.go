package report

import (
	"bytes"
	"encoding/xml"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

func sampleSession() (types.Session, []types.Invoice) {
	d := func(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }
	session := types.Session{
		ID:        "6f1c2a4e-0000-4000-8000-000000000001",
		Date:      time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 4, 1, 9, 5, 0, 0, time.UTC),
		Status:    types.StatusSaved,
		Summary: types.Summary{
			ReconciledCount:        1,
			UnreconciledCount:      1,
			TotalTransactions:      3,
			TotalDebitTransactions: 2,
			ProgressPercentage:     100,
			ReconciledAmount:       decimal.RequireFromString("1160.5"),
		},
		Data: types.SessionData{
			Transactions: []types.BankTransaction{
				{ID: "T1", Date: d(3), Description: "Rent <March> & fees", Amount: decimal.RequireFromString("1160.5"), Type: types.Debit},
				{ID: "T2", Date: d(4), Amount: decimal.NewFromInt(40), Type: types.Credit},
				{ID: "T3", Date: d(9), Description: "Paper", Amount: decimal.RequireFromString("12.30"), Type: types.Debit},
			},
			ReconciliationMap:   types.ReconciliationMap{"T1": "INV-A"},
			BankStatements:      []types.FileMeta{{Name: "march.csv", Format: "csv", Size: 2048}},
			ReconciliationMonth: types.Month{Year: 2024, Month: time.March},
		},
	}
	invoices := []types.Invoice{
		{UUID: "INV-A", IssuerName: "ACME", Date: d(1), Total: decimal.RequireFromString("1160.50"), Currency: "MXN", Status: types.InvoiceActive},
	}
	return session, invoices
}

func TestLines(t *testing.T) {
	session, invoices := sampleSession()

	lines := Lines(session, invoices)
	require.Len(t, lines, 3)
	assert.Equal(t, StateMatched, lines[0].State)
	assert.Equal(t, "INV-A", lines[0].InvoiceUUID)
	require.NotNil(t, lines[0].Invoice)
	assert.Equal(t, "ACME", lines[0].Invoice.IssuerName)
	assert.Equal(t, StateCredit, lines[1].State)
	assert.Equal(t, StatePending, lines[2].State)
	assert.Equal(t, 3, lines[2].Index)

	// Without invoice details the uuid is still reported.
	lines = Lines(session, nil)
	assert.Equal(t, "INV-A", lines[0].InvoiceUUID)
	assert.Nil(t, lines[0].Invoice)
}

type xmlReport struct {
	XMLName xml.Name `xml:"reconciliation"`
	ID      string   `xml:"id,attr"`
	Month   string   `xml:"month,attr"`
	Status  string   `xml:"status,attr"`
	Summary struct {
		Reconciled       int    `xml:"reconciled"`
		Unreconciled     int    `xml:"unreconciled"`
		ReconciledAmount string `xml:"reconciledAmount"`
	} `xml:"summary"`
	Statements []struct {
		Name string `xml:"name,attr"`
	} `xml:"statements>statement"`
	Transactions []struct {
		N           int    `xml:"n,attr"`
		ID          string `xml:"id,attr"`
		State       string `xml:"state,attr"`
		Amount      string `xml:"amount"`
		Description string `xml:"description"`
		Invoice     *struct {
			UUID   string `xml:"uuid,attr"`
			Issuer string `xml:"issuer"`
			Total  string `xml:"total"`
		} `xml:"invoice"`
	} `xml:"transaction"`
}

func TestGenerateXML(t *testing.T) {
	session, invoices := sampleSession()

	out, err := GenerateXML(session, invoices)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte(`<?xml version="1.0" encoding="UTF-8"?>`)))

	var doc xmlReport
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Equal(t, session.ID, doc.ID)
	assert.Equal(t, "2024-03", doc.Month)
	assert.Equal(t, "saved", doc.Status)
	assert.Equal(t, 1, doc.Summary.Reconciled)
	assert.Equal(t, "1160.50", doc.Summary.ReconciledAmount)
	require.Len(t, doc.Statements, 1)
	assert.Equal(t, "march.csv", doc.Statements[0].Name)

	require.Len(t, doc.Transactions, 3)
	first := doc.Transactions[0]
	assert.Equal(t, 1, first.N)
	assert.Equal(t, "matched", first.State)
	assert.Equal(t, "Rent <March> & fees", first.Description, "text is escaped")
	require.NotNil(t, first.Invoice)
	assert.Equal(t, "INV-A", first.Invoice.UUID)
	assert.Equal(t, "ACME", first.Invoice.Issuer)
	assert.Equal(t, "1160.50", first.Invoice.Total)

	assert.Equal(t, "credit", doc.Transactions[1].State)
	assert.Nil(t, doc.Transactions[1].Invoice)
	assert.Equal(t, "pending", doc.Transactions[2].State)
	assert.Equal(t, "12.30", doc.Transactions[2].Amount)
}

func TestGenerateXMLWithOptions(t *testing.T) {
	session, _ := sampleSession()

	opts := DefaultGenerateOptions()
	opts.IncludeXMLDeclaration = false
	opts.Indent = "\t"
	opts.RootAttributes = map[string]string{"xmlns": "urn:reconciliation", "version": "2"}

	out, err := GenerateXMLWithOptions(session, nil, opts)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("<reconciliation ")))
	assert.Contains(t, string(out), `version="2" xmlns="urn:reconciliation">`)
	assert.Contains(t, string(out), "\n\t<summary>\n")
	assert.Contains(t, string(out), `<invoice uuid="INV-A"/>`)

	_, err = GenerateXML(types.Session{}, nil)
	assert.Error(t, err)
}

func TestGenerateXSD(t *testing.T) {
	xsd := GenerateXSD()

	var schema struct {
		XMLName xml.Name `xml:"schema"`
	}
	require.NoError(t, xml.Unmarshal(xsd, &schema))
	assert.Contains(t, string(xsd), `<xs:element name="reconciledAmount" type="xs:decimal" minOccurs="1"/>`)
	assert.Contains(t, string(xsd), `<xs:attribute name="month" type="xs:gYearMonth" use="required"/>`)
}

func TestWriteXLSX(t *testing.T) {
	session, invoices := sampleSession()

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, session, invoices))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, TransactionsSheet}, f.GetSheetList())

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Session", session.ID}, summary[0])
	assert.Equal(t, []string{"Status", "saved"}, summary[2])
	assert.Equal(t, "march.csv", summary[len(summary)-1][0])

	rows, err := f.GetRows(TransactionsSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Transaction", rows[0][1])
	assert.Equal(t, []string{"1", "T1", "2024-03-03", "debit", "1160.5", "Rent <March> & fees", "matched", "INV-A", "ACME", "2024-03-01", "1160.5", "MXN"}, rows[1])
	assert.Equal(t, "credit", rows[2][6])
	assert.Equal(t, "pending", rows[3][6])
}

func TestWriteXLSX_EmptySession(t *testing.T) {
	session := types.Session{ID: "s", Status: types.StatusCompleted, Data: types.SessionData{ReconciliationMonth: types.Month{Year: 2024, Month: time.May}}}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, session, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(TransactionsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}
