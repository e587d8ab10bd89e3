package xlsxparser

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestParse_FirstSheet(t *testing.T) {
	path := writeWorkbook(t, "Movements", [][]interface{}{
		{"id", "date", "amount", "type"},
		{"T1", "2024-03-01", "100.00", "debit"},
		{nil, nil, nil, nil},
		{"T2", "2024-03-02", "25.50"},
	})

	table, err := Parse(path, "", config.CSVSettings{HeaderRows: 1, DataStartRow: 2})
	require.NoError(t, err)

	assert.Equal(t, path, table.SourceFile)
	assert.Equal(t, "Movements", table.Sheet)
	assert.Equal(t, []string{"id", "date", "amount", "type"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "T1", table.Rows[0]["id"])
	assert.Equal(t, "", table.Rows[1]["type"])
	assert.Equal(t, []int{2, 4}, table.RowNumbers)
}

func TestParse_MultiRowHeader(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{
		{"Invoice", "", "Total"},
		{"UUID", "Issuer", "MXN"},
		{"A-1", "ACME", "10.00"},
	})

	table, err := Parse(path, "Sheet1", config.CSVSettings{HeaderRows: 2, DataStartRow: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"Invoice UUID", "Issuer", "Total MXN"}, table.Headers)
	assert.Equal(t, "ACME", table.Rows[0]["Issuer"])
}

func TestParse_UnknownSheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{{"id"}})

	_, err := Parse(path, "Nope", config.CSVSettings{HeaderRows: 1, DataStartRow: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Contains(t, err.Error(), "available: Sheet1")
}

func TestParse_MissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.xlsx"), "", config.CSVSettings{HeaderRows: 1})
	assert.Error(t, err)
}
