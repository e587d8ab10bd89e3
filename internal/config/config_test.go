package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMainConfig(t *testing.T) {
	configContent := `
statements_dir: ./in
database:
  driver: postgres
  dsn: postgres://recon@localhost/recon?sslmode=disable
log_level: debug
processing:
  step_delay: 50ms
  progress_save_every: 10
  stall_after: 30m
retry:
  max_attempts: 5
statements:
  csv_settings:
    delimiter: ";"
    header_rows: 2
  columns:
    id: Folio
    amount: Importe
  date_layout: 02/01/2006
  decimal_separator: ","
  signed_amounts: true
invoices:
  columns:
    uuid: UUID
    total: Total
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	config, err := LoadMainConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "./in", config.StatementsDir)
	assert.Equal(t, "./output", config.OutputDir)
	assert.Equal(t, "postgres", config.Database.Driver)
	assert.Equal(t, "debug", config.LogLevel)

	assert.Equal(t, 50*time.Millisecond, config.Processing.StepDelay)
	assert.Equal(t, 10, config.Processing.ProgressSaveEvery)
	assert.Equal(t, 30*time.Minute, config.Processing.StallAfter)

	assert.Equal(t, 5, config.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, config.Retry.InitialInterval)

	assert.Equal(t, ";", config.Statements.CSV.Delimiter)
	assert.Equal(t, 3, config.Statements.CSV.DataStartRow)
	assert.Equal(t, "Folio", config.Statements.Columns.ID)
	assert.Equal(t, "date", config.Statements.Columns.Date)
	assert.Equal(t, "02/01/2006", config.Statements.DateLayout)
	assert.Equal(t, ",", config.Statements.DecimalSeparator)
	assert.True(t, config.Statements.SignedAmounts)

	assert.Equal(t, "UUID", config.Invoices.Columns.UUID)
	assert.Equal(t, "issuer_name", config.Invoices.Columns.IssuerName)
	assert.Equal(t, "MXN", config.Invoices.DefaultCurrency)
	assert.Equal(t, ".", config.Invoices.DecimalSeparator)
}

func TestLoadMainConfig_InvalidFile(t *testing.T) {
	config, err := LoadMainConfig("nonexistent.yaml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadMainConfig_RejectsUnknownDriver(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("database:\n  driver: mysql\n"), 0644))

	_, err := LoadMainConfig(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestValidate_DataStartRow(t *testing.T) {
	config := DefaultMainConfig()
	config.Invoices.CSV.DataStartRow = 1

	err := Validate(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_start_row")
}

func TestValidate_DecimalSeparator(t *testing.T) {
	config := DefaultMainConfig()
	config.Statements.DecimalSeparator = "'"

	err := Validate(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statements.decimal_separator")
}
