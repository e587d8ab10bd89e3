// =============================================================================
// Invoice Reconciler - Record Mapping and Validation
// =============================================================================
//
// This module turns parsed rows (from the CSV or XLSX parser) into domain
// records and validates them on the way:
//   - Bank statement rows become BankTransaction values
//   - Invoice ledger rows become Invoice values
//
// VALIDATION STRATEGY:
//   1. Field-level: required fields, amounts, dates, type/status vocabulary
//   2. File-level: duplicate transaction ids and invoice uuids
//
// ERROR HANDLING:
//   - Errors are collected, not returned on the first failure
//   - Each error carries the source file, row number, field and raw value
//   - "error" severity rejects the row, "warning" keeps it
//   - Whether a rejected row rejects the whole file is the caller's decision
//     (see processing.skip_invalid_rows)
//
// =============================================================================

package validation

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation error.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string

	// SourceFile is the file the row came from.
	SourceFile string

	// RowNumber is the row in the source file (for error reporting).
	RowNumber int

	// Field is the logical field that failed validation (e.g. "amount").
	Field string

	// Value is the raw value that failed validation.
	Value string

	// Message is a human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s row %d, Field '%s': %s (value: '%s')",
		strings.ToUpper(e.Severity),
		filepath.Base(e.SourceFile),
		e.RowNumber,
		e.Field,
		e.Message,
		e.Value,
	)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of mapping one file.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	// Errors contains all validation errors (including warnings).
	Errors []*ValidationError

	// ErrorCount is the number of fatal errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// RowsValidated is the number of rows inspected.
	RowsValidated int

	// RowsAccepted is the number of rows turned into records.
	RowsAccepted int
}

// NewResult returns an empty, valid result.
func NewResult() *ValidationResult {
	return &ValidationResult{IsValid: true, Errors: []*ValidationError{}}
}

// Add records one error and updates the counters.
func (r *ValidationResult) Add(err *ValidationError) {
	r.Errors = append(r.Errors, err)
	if err.Severity == SeverityError {
		r.ErrorCount++
		r.IsValid = false
	} else {
		r.WarningCount++
	}
}

// Merge folds other into r.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.ErrorCount += other.ErrorCount
	r.WarningCount += other.WarningCount
	r.RowsValidated += other.RowsValidated
	r.RowsAccepted += other.RowsAccepted
	r.IsValid = r.IsValid && other.IsValid
}

// Err returns nil when the result is valid, otherwise an error summarising
// the fatal errors.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("validation failed with %d error(s); first: %s", r.ErrorCount, r.firstError())
}

func (r *ValidationResult) firstError() string {
	for _, e := range r.Errors {
		if e.Severity == SeverityError {
			return e.Error()
		}
	}
	return ""
}

// =============================================================================
// RECORDS
// =============================================================================

// Record is one parsed row with its position in the source file.
type Record struct {
	Row    int
	Fields map[string]string
}

// Records zips parser output into Records. numbers may be shorter than rows,
// in which case positions are derived from the index.
func Records(rows []map[string]string, numbers []int) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		n := i + 2
		if i < len(numbers) {
			n = numbers[i]
		}
		out[i] = Record{Row: n, Fields: row}
	}
	return out
}

// field looks a column up by name, falling back to a case-insensitive match.
func (r Record) field(name string) (string, bool) {
	if v, ok := r.Fields[name]; ok {
		return strings.TrimSpace(v), true
	}
	for k, v := range r.Fields {
		if strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// =============================================================================
// STATEMENT MAPPING
// =============================================================================

// StatementMapper maps statement rows to bank transactions.
type StatementMapper struct {
	format config.StatementFormat
}

// NewStatementMapper creates a mapper for the given statement layout.
func NewStatementMapper(format config.StatementFormat) *StatementMapper {
	return &StatementMapper{format: format}
}

// Map converts records into transactions. Rows with fatal errors are left
// out of the returned slice and reported in the result.
func (m *StatementMapper) Map(records []Record, sourceFile string) ([]types.BankTransaction, *ValidationResult) {
	result := NewResult()
	cols := m.format.Columns
	seen := make(map[string]int)
	transactions := make([]types.BankTransaction, 0, len(records))

	for _, rec := range records {
		result.RowsValidated++
		rowErrs := &rowErrors{file: sourceFile, row: rec.Row}

		id := rowErrs.required(rec, cols.ID, "id")
		if id != "" {
			if first, dup := seen[id]; dup {
				rowErrs.fail("id", id, fmt.Sprintf("Duplicate transaction id (first seen on row %d)", first))
			} else {
				seen[id] = rec.Row
			}
		}

		var date time.Time
		if raw := rowErrs.required(rec, cols.Date, "date"); raw != "" {
			parsed, err := ParseDate(raw, m.format.DateLayout)
			if err != nil {
				rowErrs.fail("date", raw, err.Error())
			}
			date = parsed
		}

		var amount decimal.Decimal
		rawAmount := rowErrs.required(rec, cols.Amount, "amount")
		if rawAmount != "" {
			parsed, err := ParseAmount(rawAmount, m.format.DecimalSeparator)
			switch {
			case err != nil:
				rowErrs.fail("amount", rawAmount, err.Error())
			case parsed.IsZero():
				rowErrs.fail("amount", rawAmount, "Amount must be greater than zero")
			}
			amount = parsed
		}

		rawType, _ := rec.field(cols.Type)
		var txType types.TransactionType
		switch {
		case rawType != "":
			parsed, err := types.ParseTransactionType(rawType)
			if err != nil {
				rowErrs.fail("type", rawType, err.Error())
			}
			txType = parsed
			if amount.IsNegative() && !m.format.SignedAmounts {
				rowErrs.fail("amount", rawAmount, "Negative amount requires statements.signed_amounts")
			}
		case m.format.SignedAmounts:
			if amount.IsNegative() {
				txType = types.Debit
			} else {
				txType = types.Credit
			}
		default:
			rowErrs.fail("type", "", "Type column is empty and statements.signed_amounts is off")
		}

		description, _ := rec.field(cols.Description)

		rowErrs.flush(result)
		if rowErrs.fatal {
			continue
		}

		transactions = append(transactions, types.BankTransaction{
			ID:          id,
			Date:        date,
			Description: description,
			Amount:      amount.Abs(),
			Type:        txType,
		})
		result.RowsAccepted++
	}

	return transactions, result
}

// =============================================================================
// INVOICE MAPPING
// =============================================================================

// InvoiceMapper maps invoice ledger rows to invoices.
type InvoiceMapper struct {
	format config.InvoiceFormat
}

// NewInvoiceMapper creates a mapper for the given ledger layout.
func NewInvoiceMapper(format config.InvoiceFormat) *InvoiceMapper {
	return &InvoiceMapper{format: format}
}

// Map converts records into invoices. Rows with fatal errors are left out of
// the returned slice and reported in the result.
func (m *InvoiceMapper) Map(records []Record, sourceFile string) ([]types.Invoice, *ValidationResult) {
	result := NewResult()
	cols := m.format.Columns
	seen := make(map[string]int)
	invoices := make([]types.Invoice, 0, len(records))

	for _, rec := range records {
		result.RowsValidated++
		rowErrs := &rowErrors{file: sourceFile, row: rec.Row}

		id := rowErrs.required(rec, cols.UUID, "uuid")
		if id != "" {
			if first, dup := seen[id]; dup {
				rowErrs.fail("uuid", id, fmt.Sprintf("Duplicate invoice uuid (first seen on row %d)", first))
			} else {
				seen[id] = rec.Row
			}
			// Ledgers sometimes carry internal folios instead of fiscal UUIDs.
			if _, err := uuid.Parse(id); err != nil {
				rowErrs.warn("uuid", id, "Value is not a canonical UUID")
			}
		}

		var date time.Time
		if raw := rowErrs.required(rec, cols.Date, "date"); raw != "" {
			parsed, err := ParseDate(raw, m.format.DateLayout)
			if err != nil {
				rowErrs.fail("date", raw, err.Error())
			}
			date = parsed
		}

		var total decimal.Decimal
		if raw := rowErrs.required(rec, cols.Total, "total"); raw != "" {
			parsed, err := ParseAmount(raw, m.format.DecimalSeparator)
			switch {
			case err != nil:
				rowErrs.fail("total", raw, err.Error())
			case !parsed.IsPositive():
				rowErrs.fail("total", raw, "Invoice total must be greater than zero")
			}
			total = parsed
		}

		rawStatus, _ := rec.field(cols.Status)
		status, err := types.ParseInvoiceStatus(rawStatus)
		if err != nil {
			rowErrs.fail("status", rawStatus, err.Error())
		}

		currency, _ := rec.field(cols.Currency)
		if currency == "" {
			currency = m.format.DefaultCurrency
		}
		issuer, _ := rec.field(cols.IssuerName)

		rowErrs.flush(result)
		if rowErrs.fatal {
			continue
		}

		invoices = append(invoices, types.Invoice{
			UUID:       id,
			IssuerName: issuer,
			Date:       date,
			Total:      total,
			Currency:   strings.ToUpper(currency),
			Status:     status,
		})
		result.RowsAccepted++
	}

	return invoices, result
}

// =============================================================================
// ROW ERROR COLLECTION
// =============================================================================

type rowErrors struct {
	file  string
	row   int
	errs  []*ValidationError
	fatal bool
}

func (r *rowErrors) required(rec Record, column, field string) string {
	v, ok := rec.field(column)
	if !ok {
		r.fail(field, "", fmt.Sprintf("Column '%s' not found", column))
		return ""
	}
	if v == "" {
		r.fail(field, "", "Required field is missing")
	}
	return v
}

func (r *rowErrors) fail(field, value, msg string) {
	r.fatal = true
	r.errs = append(r.errs, &ValidationError{
		Severity: SeverityError, SourceFile: r.file, RowNumber: r.row,
		Field: field, Value: value, Message: msg,
	})
}

func (r *rowErrors) warn(field, value, msg string) {
	r.errs = append(r.errs, &ValidationError{
		Severity: SeverityWarning, SourceFile: r.file, RowNumber: r.row,
		Field: field, Value: value, Message: msg,
	})
}

func (r *rowErrors) flush(result *ValidationResult) {
	for _, e := range r.errs {
		result.Add(e)
	}
}

// =============================================================================
// VALUE PARSERS
// =============================================================================

// ParseAmount parses a monetary amount as printed by banks and accounting
// tools: "1,234.56", "$ 1,234.56", "-1234.56", "(1,234.56)", "1234.56 MXN".
// With decimalSeparator "," the roles of "." and "," swap ("1.234,56").
// An empty separator means ".". Grouping must come in blocks of three digits
// before the decimal separator, so a number written in the other convention
// is rejected instead of misread. The result is exact; no floating point is
// involved.
func ParseAmount(raw, decimalSeparator string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("Value is empty")
	}

	group := ","
	if decimalSeparator == "," {
		group = "."
	} else {
		decimalSeparator = "."
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, code := range []string{"MXN", "USD", "EUR"} {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, code), code))
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', ' ', '\u00a0':
			return -1
		}
		return r
	}, s)

	if !validGrouping(s, decimalSeparator, group) {
		return decimal.Zero, fmt.Errorf("Value '%s' is not a valid amount (decimal separator '%s')", raw, decimalSeparator)
	}
	s = strings.ReplaceAll(s, group, "")
	if decimalSeparator != "." {
		s = strings.ReplaceAll(s, decimalSeparator, ".")
	}

	if strings.HasPrefix(s, "-") && negative {
		return decimal.Zero, fmt.Errorf("Value '%s' is not a valid amount", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Value '%s' is not a valid amount", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// validGrouping reports whether every grouping separator sits before the
// decimal separator and splits the integer part into blocks of three digits.
func validGrouping(s, decimalSeparator, group string) bool {
	intPart := strings.TrimPrefix(s, "-")
	if i := strings.Index(intPart, decimalSeparator); i >= 0 {
		if strings.Contains(intPart[i:], group) {
			return false
		}
		intPart = intPart[:i]
	}
	if !strings.Contains(intPart, group) {
		return true
	}

	for i, block := range strings.Split(intPart, group) {
		if i == 0 && (len(block) == 0 || len(block) > 3) {
			return false
		}
		if i > 0 && len(block) != 3 {
			return false
		}
	}
	return true
}

// ParseDate parses a date with the configured layout, falling back to ISO
// dates and Excel serial numbers (spreadsheets often store dates that way).
func ParseDate(raw, layout string) (time.Time, error) {
	s := strings.TrimSpace(raw)

	layouts := []string{layout, "2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}
	for _, l := range layouts {
		if l == "" {
			continue
		}
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("Value '%s' does not match date layout %s", raw, layout)
}

// =============================================================================
// ERROR OUTPUT
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d issue(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}

// WriteErrorLog writes validation errors to a log file, creating parent
// directories as needed.
func WriteErrorLog(errors []*ValidationError, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create error log directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "Validation report generated %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(writer, "%s\n", strings.Repeat("=", 60))
	writer.WriteString(FormatErrors(errors))

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to write error log: %w", err)
	}
	return nil
}
