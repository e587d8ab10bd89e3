// =============================================================================
// Invoice Reconciler - XLSX Parser
// =============================================================================
//
// Many banks only offer statement downloads as spreadsheets, and accounting
// teams keep invoice ledgers in Excel. This module reads one sheet of an XLSX
// workbook into the same header -> value row shape the CSV parser produces,
// so the record mapping layer does not care which format a file came from.
//
// SHEET LAYOUT:
//
//   | Row 1 | id    | date       | description       | amount  | type  |
//   | Row 2 | T-001 | 2024-03-01 | Office supplies   | 1160.00 | debit |
//   | Row 3 | T-002 | 2024-03-02 | Customer transfer | 500.00  | credit|
//
// Header rows and the data start row are configured with the same
// CSVSettings block used for CSV files (the delimiter is ignored).
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
)

// =============================================================================
// TABLE STRUCTURE
// =============================================================================

// Table is one parsed sheet.
type Table struct {
	// SourceFile is the path to the workbook.
	SourceFile string

	// Sheet is the name of the sheet that was read.
	Sheet string

	// Headers contains the merged column headers.
	Headers []string

	// Rows contains the data rows as maps of header -> value.
	Rows []map[string]string

	// RowNumbers holds the 1-based sheet row of each entry in Rows.
	RowNumbers []int
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a sheet from an XLSX workbook. An empty sheet name selects the
// first sheet.
func Parse(path, sheet string, settings config.CSVSettings) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	table, err := ParseFile(f, sheet, settings)
	if err != nil {
		return nil, err
	}
	table.SourceFile = path
	return table, nil
}

// ParseFile reads a sheet from an already opened workbook.
func ParseFile(f *excelize.File, sheet string, settings config.CSVSettings) (*Table, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			return nil, fmt.Errorf("workbook has no sheets")
		}
	}

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found (available: %s)", sheet, strings.Join(f.GetSheetList(), ", "))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}

	headerRows := settings.HeaderRows
	if headerRows <= 0 {
		headerRows = 1
	}
	if len(rows) < headerRows {
		return nil, fmt.Errorf("sheet %s has fewer rows than header_rows setting", sheet)
	}

	headers := mergeHeaders(rows[:headerRows])

	startIndex := settings.DataStartRow - 1
	if startIndex < headerRows {
		startIndex = headerRows
	}

	table := &Table{
		Sheet:      sheet,
		Headers:    headers,
		Rows:       []map[string]string{},
		RowNumbers: []int{},
	}

	for i := startIndex; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}

		record := make(map[string]string, len(headers))
		for col, header := range headers {
			if col < len(row) {
				record[header] = strings.TrimSpace(row[col])
			} else {
				// excelize trims trailing empty cells.
				record[header] = ""
			}
		}

		table.Rows = append(table.Rows, record)
		table.RowNumbers = append(table.RowNumbers, i+1)
	}

	return table, nil
}

// mergeHeaders joins the non-empty cells of every header row per column.
func mergeHeaders(headerRows [][]string) []string {
	maxCols := 0
	for _, row := range headerRows {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}

	headers := make([]string, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string
		for _, row := range headerRows {
			if col < len(row) {
				if v := strings.TrimSpace(row[col]); v != "" {
					parts = append(parts, v)
				}
			}
		}
		header := strings.Join(parts, " ")
		if header == "" {
			header = fmt.Sprintf("Column_%d", col+1)
		}
		headers[col] = header
	}

	return headers
}

// isRowEmpty checks if a row is empty (all cells are blank).
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
