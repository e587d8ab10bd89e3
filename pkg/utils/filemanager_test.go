package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("id,amount\n"), 0644))
}

func TestDiscoverStatements(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.xlsx"))
	touch(t, filepath.Join(dir, "a.CSV"))
	touch(t, filepath.Join(dir, "notes.pdf"))
	touch(t, filepath.Join(dir, "~$b.xlsx"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0755))

	fm := NewFileManager(dir, "", "")
	files, err := fm.DiscoverStatements()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.CSV"), filepath.Join(dir, "b.xlsx")}, files)
}

func TestDescribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "march.csv")
	touch(t, path)

	meta, err := Describe(path)
	require.NoError(t, err)
	assert.Equal(t, "march.csv", meta.Name)
	assert.Equal(t, FormatCSV, meta.Format)
	assert.Equal(t, int64(len("id,amount\n")), meta.Size)
	assert.True(t, filepath.IsAbs(meta.Path))

	_, err = Describe(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	pdf := filepath.Join(t.TempDir(), "x.pdf")
	touch(t, pdf)
	_, err = Describe(pdf)
	assert.Error(t, err)
}

func TestArchiveStatement(t *testing.T) {
	root := t.TempDir()
	inbox := filepath.Join(root, "in")
	require.NoError(t, os.MkdirAll(inbox, 0755))
	src := filepath.Join(inbox, "march.csv")
	touch(t, src)

	fm := NewFileManager(inbox, filepath.Join(root, "out"), filepath.Join(root, "archive"))
	require.NoError(t, fm.EnsureDirectories())

	dst, err := fm.ArchiveStatement(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "archive", "march.csv"), dst)
	assert.False(t, FileExists(src))
	assert.True(t, FileExists(dst))
}

func TestGenerateReportFileName(t *testing.T) {
	name := GenerateReportFileName("reconciliation_{month}_{session}", "xml", map[string]string{
		"month": "2024-03", "session": "abc",
	})
	assert.Equal(t, "reconciliation_2024-03_abc.xml", name)

	name = GenerateReportFileName("report", ".xlsx", nil)
	assert.True(t, strings.HasPrefix(name, "report_"))
	assert.True(t, strings.HasSuffix(name, ".xlsx"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(name, "report_"), ".xlsx"), 36)
}

func TestWriteSummaryLog(t *testing.T) {
	month, err := types.ParseMonth("2024-03")
	require.NoError(t, err)

	session := types.Session{
		ID:     "s-1",
		Date:   time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
		Status: types.StatusSaved,
		Summary: types.Summary{
			TotalTransactions: 2, TotalDebitTransactions: 2,
			ReconciledCount: 1, UnreconciledCount: 1,
			ProgressPercentage: 100, ReconciledAmount: decimal.NewFromInt(100),
		},
		Data: types.SessionData{
			ReconciliationMonth: month,
			Transactions: []types.BankTransaction{
				{ID: "T1", Amount: decimal.NewFromInt(100), Type: types.Debit},
				{ID: "T2", Amount: decimal.NewFromInt(75), Type: types.Debit, Description: "Fuel"},
			},
			ReconciliationMap: types.ReconciliationMap{"T1": "A"},
			BankStatements:    []types.FileMeta{{Name: "march.csv", Format: "csv", Size: 10}},
		},
	}

	path, err := WriteSummaryLog(session, filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Month:      2024-03")
	assert.Contains(t, content, "Reconciled Amount:   100.00")
	assert.Contains(t, content, "march.csv (csv, 10 bytes)")
	assert.Contains(t, content, "Fuel")
	assert.NotContains(t, content, "T1 ")
}
