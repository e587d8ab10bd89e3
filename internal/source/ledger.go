package source

import (
	"fmt"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
	"github.com/ginjaninja78/invoice-reconciler/internal/csvparser"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
	"github.com/ginjaninja78/invoice-reconciler/internal/validation"
	"github.com/ginjaninja78/invoice-reconciler/internal/xlsxparser"
	"github.com/ginjaninja78/invoice-reconciler/pkg/utils"
)

// ReadInvoiceFile reads an invoice ledger export (CSV or XLSX). Invoices of
// rows with fatal errors are left out; the caller decides whether a non-valid
// result aborts the import.
func ReadInvoiceFile(path string, format config.InvoiceFormat) ([]types.Invoice, *validation.ValidationResult, error) {
	kind, err := utils.DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	var records []validation.Record
	switch kind {
	case utils.FormatXLSX:
		table, err := xlsxparser.Parse(path, format.Sheet, format.CSV)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read ledger: %w", err)
		}
		records = validation.Records(table.Rows, table.RowNumbers)
	default:
		data, err := csvparser.Parse(path, format.CSV)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read ledger: %w", err)
		}
		records = validation.Records(data.Rows, data.RowNumbers)
	}

	invoices, result := validation.NewInvoiceMapper(format).Map(records, path)
	return invoices, result, nil
}
