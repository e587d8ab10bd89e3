// =============================================================================
// Invoice Reconciler - Configuration Module
// =============================================================================
//
// This module loads the application configuration from a YAML file. The
// file covers:
//   1. Directories (statements inbox, report output, statement archive)
//   2. Database (driver and DSN for the session/invoice store)
//   3. Logging
//   4. Processing (step pacing, progress persistence, stall detection)
//   5. Retry policy for the invoice source
//   6. Column mappings for bank statements and invoice ledgers
//
// Loading follows three steps: read + unmarshal, apply defaults, validate.
// Command-line flags and RECONCILER_* environment variables are layered on
// top by the cmd package.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/invoice-reconciler/internal/logging"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// StatementsDir is scanned for statement files when none are given on
	// the command line.
	// Default: "./statements"
	StatementsDir string `yaml:"statements_dir"`

	// OutputDir receives exported reports and summary logs.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// StatementsArchiveDir receives statement files once their session is
	// completed (see Processing.ArchiveOnComplete).
	// Default: "./statements_archive"
	StatementsArchiveDir string `yaml:"statements_archive_dir"`

	// =========================================================================
	// STORAGE
	// =========================================================================

	Database DatabaseConfig `yaml:"database"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is the path to the application log file.
	// Default: "./logs/reconciler.log"
	LogFile string `yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// ReportNameFormat defines the file name of exported reports.
	// Placeholders: {month}, {session}, {timestamp}, {uuid}
	// Default: "reconciliation_{month}_{session}_{timestamp}"
	ReportNameFormat string `yaml:"report_name_format"`

	Processing ProcessingConfig `yaml:"processing"`
	Retry      RetryConfig      `yaml:"retry"`

	// =========================================================================
	// INPUT FORMATS
	// =========================================================================

	Statements StatementFormat `yaml:"statements"`
	Invoices   InvoiceFormat   `yaml:"invoices"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	// Default: "./data/reconciler.db"
	DSN string `yaml:"dsn"`
}

// ProcessingConfig controls how a matching run is paced and persisted.
type ProcessingConfig struct {
	// StepDelay is the pause between two transactions, giving observers
	// time to render progress. Zero disables pacing.
	// Default: 0
	StepDelay time.Duration `yaml:"step_delay"`

	// ProgressSaveEvery persists the session every N steps while a run is in
	// flight. The final state is always persisted.
	// Default: 25
	ProgressSaveEvery int `yaml:"progress_save_every"`

	// StallAfter is how long a session may sit in "processing" without an
	// update before it is marked as "error" on the next start-up.
	// Default: 1h
	StallAfter time.Duration `yaml:"stall_after"`

	// ArchiveOnComplete moves statement files to StatementsArchiveDir when
	// their session is completed.
	// Default: false
	ArchiveOnComplete bool `yaml:"archive_on_complete"`

	// SkipInvalidRows drops rows that fail validation instead of rejecting
	// the whole file.
	// Default: false
	SkipInvalidRows bool `yaml:"skip_invalid_rows"`
}

// RetryConfig bounds retries against the invoice source.
type RetryConfig struct {
	// MaxAttempts includes the first call.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// Default: 200ms
	InitialInterval time.Duration `yaml:"initial_interval"`

	// Default: 5s
	MaxInterval time.Duration `yaml:"max_interval"`
}

// =============================================================================
// INPUT FORMAT STRUCTURES
// =============================================================================

// CSVSettings contains settings for parsing CSV files.
type CSVSettings struct {
	// Delimiter is the character used to separate fields in the CSV.
	// Common values: "," (comma), "|" (pipe), "\t" (tab), ";" (semicolon)
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// HeaderRows is the number of header rows. Multi-row headers are merged.
	// Default: 1
	HeaderRows int `yaml:"header_rows"`

	// DataStartRow is the 1-based row where data begins.
	// Default: HeaderRows + 1
	DataStartRow int `yaml:"data_start_row"`
}

// StatementColumns names the statement columns. Matching is case-insensitive.
type StatementColumns struct {
	ID          string `yaml:"id"`
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
	Amount      string `yaml:"amount"`
	Type        string `yaml:"type"`
}

// StatementFormat describes how bank statement files are laid out.
type StatementFormat struct {
	CSV     CSVSettings      `yaml:"csv_settings"`
	Columns StatementColumns `yaml:"columns"`

	// DateLayout is a Go time layout.
	// Default: "2006-01-02"
	DateLayout string `yaml:"date_layout"`

	// Sheet is the XLSX sheet to read. Empty means the first sheet.
	Sheet string `yaml:"sheet"`

	// DecimalSeparator is "." ("1,234.56") or "," ("1.234,56"). The other
	// character is the grouping separator.
	// Default: "."
	DecimalSeparator string `yaml:"decimal_separator"`

	// SignedAmounts derives the type from the amount sign when the type
	// column is missing or empty: negative is a debit.
	SignedAmounts bool `yaml:"signed_amounts"`
}

// InvoiceColumns names the invoice ledger columns.
type InvoiceColumns struct {
	UUID       string `yaml:"uuid"`
	IssuerName string `yaml:"issuer_name"`
	Date       string `yaml:"date"`
	Total      string `yaml:"total"`
	Currency   string `yaml:"currency"`
	Status     string `yaml:"status"`
}

// InvoiceFormat describes how invoice ledger files are laid out.
type InvoiceFormat struct {
	CSV     CSVSettings    `yaml:"csv_settings"`
	Columns InvoiceColumns `yaml:"columns"`

	// Default: "2006-01-02"
	DateLayout string `yaml:"date_layout"`

	Sheet string `yaml:"sheet"`

	// Default: "."
	DecimalSeparator string `yaml:"decimal_separator"`

	// DefaultCurrency fills rows with an empty currency column.
	// Default: "MXN"
	DefaultCurrency string `yaml:"default_currency"`
}

// =============================================================================
// LOADING
// =============================================================================

// DefaultMainConfig returns a configuration with every default applied.
// Used when no configuration file exists.
func DefaultMainConfig() *MainConfig {
	config := &MainConfig{}
	applyMainConfigDefaults(config)
	return config
}

// LoadMainConfig loads the main configuration file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset option.
func applyMainConfigDefaults(config *MainConfig) {
	if config.StatementsDir == "" {
		config.StatementsDir = "./statements"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.StatementsArchiveDir == "" {
		config.StatementsArchiveDir = "./statements_archive"
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "sqlite"
	}
	if config.Database.DSN == "" {
		config.Database.DSN = "./data/reconciler.db"
	}
	if config.LogFile == "" {
		config.LogFile = "./logs/reconciler.log"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.ReportNameFormat == "" {
		config.ReportNameFormat = "reconciliation_{month}_{session}_{timestamp}"
	}

	// Processing defaults.
	if config.Processing.ProgressSaveEvery == 0 {
		config.Processing.ProgressSaveEvery = 25
	}
	if config.Processing.StallAfter == 0 {
		config.Processing.StallAfter = time.Hour
	}

	// Retry defaults.
	if config.Retry.MaxAttempts == 0 {
		config.Retry.MaxAttempts = 3
	}
	if config.Retry.InitialInterval == 0 {
		config.Retry.InitialInterval = 200 * time.Millisecond
	}
	if config.Retry.MaxInterval == 0 {
		config.Retry.MaxInterval = 5 * time.Second
	}

	applyCSVDefaults(&config.Statements.CSV)
	applyCSVDefaults(&config.Invoices.CSV)

	// Statement column defaults.
	sc := &config.Statements.Columns
	if sc.ID == "" {
		sc.ID = "id"
	}
	if sc.Date == "" {
		sc.Date = "date"
	}
	if sc.Description == "" {
		sc.Description = "description"
	}
	if sc.Amount == "" {
		sc.Amount = "amount"
	}
	if sc.Type == "" {
		sc.Type = "type"
	}
	if config.Statements.DateLayout == "" {
		config.Statements.DateLayout = "2006-01-02"
	}
	if config.Statements.DecimalSeparator == "" {
		config.Statements.DecimalSeparator = "."
	}

	// Invoice column defaults.
	ic := &config.Invoices.Columns
	if ic.UUID == "" {
		ic.UUID = "uuid"
	}
	if ic.IssuerName == "" {
		ic.IssuerName = "issuer_name"
	}
	if ic.Date == "" {
		ic.Date = "date"
	}
	if ic.Total == "" {
		ic.Total = "total"
	}
	if ic.Currency == "" {
		ic.Currency = "currency"
	}
	if ic.Status == "" {
		ic.Status = "status"
	}
	if config.Invoices.DateLayout == "" {
		config.Invoices.DateLayout = "2006-01-02"
	}
	if config.Invoices.DecimalSeparator == "" {
		config.Invoices.DecimalSeparator = "."
	}
	if config.Invoices.DefaultCurrency == "" {
		config.Invoices.DefaultCurrency = "MXN"
	}
}

func applyCSVDefaults(s *CSVSettings) {
	if s.Delimiter == "" {
		s.Delimiter = ","
	}
	if s.HeaderRows == 0 {
		s.HeaderRows = 1
	}
	if s.DataStartRow == 0 {
		s.DataStartRow = s.HeaderRows + 1
	}
}

// Validate checks the configuration for values the application cannot run with.
func Validate(config *MainConfig) error {
	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}

	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		return err
	}

	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if config.Processing.ProgressSaveEvery < 1 {
		return fmt.Errorf("processing.progress_save_every must be at least 1")
	}
	if config.Processing.StepDelay < 0 {
		return fmt.Errorf("processing.step_delay cannot be negative")
	}

	for name, sep := range map[string]string{
		"statements": config.Statements.DecimalSeparator,
		"invoices":   config.Invoices.DecimalSeparator,
	} {
		if sep != "." && sep != "," {
			return fmt.Errorf("%s.decimal_separator must be \".\" or \",\", got %q", name, sep)
		}
	}

	for _, s := range []CSVSettings{config.Statements.CSV, config.Invoices.CSV} {
		if s.DataStartRow <= s.HeaderRows {
			return fmt.Errorf("csv_settings.data_start_row (%d) must be after the header rows (%d)", s.DataStartRow, s.HeaderRows)
		}
	}

	return nil
}
