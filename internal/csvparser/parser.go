// =============================================================================
// Invoice Reconciler - CSV Parser Module
// =============================================================================
//
// This module parses the CSV exports produced by online banking portals and
// accounting systems. It handles:
//   - Different delimiters (comma, semicolon, pipe, tab)
//   - Multi-line headers (merged into one header per column)
//   - Custom data start rows (banks often print account metadata first)
//   - A UTF-8 byte order mark on the first header cell
//
// Rows come back as maps keyed by header so the record mapping layer can look
// columns up by name. Every row keeps its 1-based line number for error
// reporting.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
)

// =============================================================================
// CSV DATA STRUCTURE
// =============================================================================

// CSVData represents a parsed CSV file.
type CSVData struct {
	// Headers contains the column headers. For multi-line headers, these are
	// the merged headers.
	Headers []string

	// Rows contains the data rows as maps of header -> value.
	Rows []map[string]string

	// RowNumbers holds the 1-based record number of each entry in Rows.
	// encoding/csv does not count blank lines.
	RowNumbers []int

	// SourceFile is the path to the source CSV file, if any.
	SourceFile string
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a CSV file and returns the parsed data.
func Parse(filePath string, settings config.CSVSettings) (*CSVData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := ParseReader(file, settings)
	if err != nil {
		return nil, err
	}
	data.SourceFile = filePath
	return data, nil
}

// ParseReader parses CSV content from r.
//
// PARSING PROCESS:
//   1. Configure the CSV reader with the delimiter
//   2. Read and merge header rows
//   3. Read data rows starting from the configured data start row
//   4. Convert each row to a map of header -> value
func ParseReader(r io.Reader, settings config.CSVSettings) (*CSVData, error) {
	csvReader := csv.NewReader(bufio.NewReader(r))
	configureReader(csvReader, settings)

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(allRows) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	headers, err := extractHeaders(allRows, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to extract headers: %w", err)
	}

	rows, numbers := extractDataRows(allRows, headers, settings)

	return &CSVData{
		Headers:    headers,
		Rows:       rows,
		RowNumbers: numbers,
	}, nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	switch settings.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Bank exports frequently have trailing columns on some rows only.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// extractHeaders extracts and merges headers from the CSV.
//
// MULTI-LINE HEADER HANDLING:
//   Non-empty values of each column are joined with a space.
//
//   Row 1: "Movement", "", "Amount"
//   Row 2: "Date", "Reference", "MXN"
//   Result: "Movement Date", "Reference", "Amount MXN"
func extractHeaders(allRows [][]string, settings config.CSVSettings) ([]string, error) {
	if settings.HeaderRows <= 0 {
		return nil, fmt.Errorf("header_rows must be at least 1")
	}

	if len(allRows) < settings.HeaderRows {
		return nil, fmt.Errorf("file has fewer rows than header_rows setting")
	}

	if settings.HeaderRows == 1 {
		return cleanHeaders(allRows[0]), nil
	}

	maxCols := 0
	for i := 0; i < settings.HeaderRows; i++ {
		if len(allRows[i]) > maxCols {
			maxCols = len(allRows[i])
		}
	}

	headers := make([]string, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string
		for row := 0; row < settings.HeaderRows; row++ {
			if col < len(allRows[row]) {
				value := strings.TrimSpace(allRows[row][col])
				if value != "" {
					parts = append(parts, value)
				}
			}
		}
		headers[col] = strings.Join(parts, " ")
	}

	return cleanHeaders(headers), nil
}

// cleanHeaders trims headers, strips a byte order mark and names empty
// columns after their position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))

	for i, header := range headers {
		header = strings.TrimPrefix(header, "\ufeff")
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}

	return cleaned
}

// extractDataRows converts data rows to maps, skipping blank lines.
func extractDataRows(allRows [][]string, headers []string, settings config.CSVSettings) ([]map[string]string, []int) {
	// DataStartRow is 1-indexed.
	startIndex := settings.DataStartRow - 1
	if startIndex < settings.HeaderRows {
		startIndex = settings.HeaderRows
	}

	if startIndex >= len(allRows) {
		return []map[string]string{}, []int{}
	}

	rows := make([]map[string]string, 0, len(allRows)-startIndex)
	numbers := make([]int, 0, len(allRows)-startIndex)

	for rowIndex := startIndex; rowIndex < len(allRows); rowIndex++ {
		row := allRows[rowIndex]
		if isRowEmpty(row) {
			continue
		}
		rows = append(rows, rowToMap(row, headers))
		numbers = append(numbers, rowIndex+1)
	}

	return rows, numbers
}

func rowToMap(row []string, headers []string) map[string]string {
	rowMap := make(map[string]string, len(headers))
	for colIndex, header := range headers {
		if colIndex < len(row) {
			rowMap[header] = strings.TrimSpace(row[colIndex])
		} else {
			rowMap[header] = ""
		}
	}
	return rowMap
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// STREAMING PARSER FOR LARGE FILES
// =============================================================================

// StreamingParser processes a CSV one row at a time instead of loading the
// whole file. Statement files from a year of card activity can be large.
//
// USAGE:
//   parser, err := NewStreamingParser(filePath, settings)
//   if err != nil {
//       return err
//   }
//   defer parser.Close()
//
//   for parser.Next() {
//       row := parser.Row()
//   }
//
//   if err := parser.Err(); err != nil {
//       return err
//   }
type StreamingParser struct {
	closer     io.Closer
	reader     *csv.Reader
	headers    []string
	currentRow map[string]string
	rowNumber  int
	err        error
	settings   config.CSVSettings
}

// NewStreamingParser opens filePath and positions the parser on the first
// data row.
func NewStreamingParser(filePath string, settings config.CSVSettings) (*StreamingParser, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	parser, err := newStreamingParser(file, file, settings)
	if err != nil {
		file.Close()
		return nil, err
	}
	return parser, nil
}

func newStreamingParser(r io.Reader, closer io.Closer, settings config.CSVSettings) (*StreamingParser, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	configureReader(reader, settings)

	parser := &StreamingParser{
		closer:   closer,
		reader:   reader,
		settings: settings,
	}

	if err := parser.readHeaders(); err != nil {
		return nil, err
	}
	if err := parser.skipToDataStart(); err != nil {
		return nil, err
	}
	return parser, nil
}

// readHeaders reads and processes the header rows.
func (p *StreamingParser) readHeaders() error {
	headerRows := make([][]string, 0, p.settings.HeaderRows)

	for i := 0; i < p.settings.HeaderRows; i++ {
		row, err := p.reader.Read()
		if err == io.EOF {
			return fmt.Errorf("unexpected end of file while reading headers")
		}
		if err != nil {
			return fmt.Errorf("error reading header row %d: %w", i+1, err)
		}
		headerRows = append(headerRows, row)
		p.rowNumber++
	}

	headers, err := extractHeaders(headerRows, p.settings)
	if err != nil {
		return err
	}

	p.headers = headers
	return nil
}

// skipToDataStart skips rows until the data start row.
func (p *StreamingParser) skipToDataStart() error {
	targetRow := p.settings.DataStartRow
	if targetRow <= 0 {
		targetRow = p.settings.HeaderRows + 1
	}

	for p.rowNumber < targetRow-1 {
		_, err := p.reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error skipping to data start: %w", err)
		}
		p.rowNumber++
	}

	return nil
}

// Next advances to the next non-empty row. Returns false at the end of the
// file or on error.
func (p *StreamingParser) Next() bool {
	for p.err == nil {
		row, err := p.reader.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			p.err = fmt.Errorf("error reading row %d: %w", p.rowNumber+1, err)
			return false
		}

		p.rowNumber++
		if isRowEmpty(row) {
			continue
		}

		p.currentRow = rowToMap(row, p.headers)
		return true
	}
	return false
}

// Row returns the current row as a map.
func (p *StreamingParser) Row() map[string]string {
	return p.currentRow
}

// Headers returns the parsed headers.
func (p *StreamingParser) Headers() []string {
	return p.headers
}

// RowNumber returns the 1-based record number of the current row.
func (p *StreamingParser) RowNumber() int {
	return p.rowNumber
}

// Err returns any error that occurred during parsing.
func (p *StreamingParser) Err() error {
	return p.err
}

// Close closes the underlying file.
func (p *StreamingParser) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
