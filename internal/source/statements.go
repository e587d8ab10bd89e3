package source

import (
	"context"
	"fmt"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
	"github.com/ginjaninja78/invoice-reconciler/internal/csvparser"
	"github.com/ginjaninja78/invoice-reconciler/internal/logging"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
	"github.com/ginjaninja78/invoice-reconciler/internal/validation"
	"github.com/ginjaninja78/invoice-reconciler/internal/xlsxparser"
	"github.com/ginjaninja78/invoice-reconciler/pkg/utils"
)

// Batch is the outcome of loading a set of statement files.
type Batch struct {
	// Transactions in file order, then row order, filtered to the month.
	Transactions []types.BankTransaction

	// Files describes every file that was read.
	Files []types.FileMeta

	// Result collects the validation issues of all files.
	Result *validation.ValidationResult

	// OutOfMonth counts valid rows dropped by the month filter.
	OutOfMonth int
}

// StatementOptions controls how statement files are loaded.
type StatementOptions struct {
	// SkipInvalidRows drops rows with fatal validation errors instead of
	// failing the load.
	SkipInvalidRows bool

	Logger logging.Logger
}

// StatementFiles reads bank transactions from CSV and XLSX statement files.
type StatementFiles struct {
	paths  []string
	format config.StatementFormat
	opts   StatementOptions
	mapper *validation.StatementMapper
}

// NewStatementFiles creates a transaction source over the given files. The
// files are read in the order given.
func NewStatementFiles(paths []string, format config.StatementFormat, opts StatementOptions) *StatementFiles {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &StatementFiles{
		paths:  append([]string(nil), paths...),
		format: format,
		opts:   opts,
		mapper: validation.NewStatementMapper(format),
	}
}

// ListTransactions implements TransactionSource.
func (s *StatementFiles) ListTransactions(ctx context.Context, month types.Month) ([]types.BankTransaction, error) {
	batch, err := s.Load(ctx, month)
	if err != nil {
		return nil, err
	}
	return batch.Transactions, nil
}

// Load reads, validates and month-filters every file. When validation fails
// and invalid rows are not skipped, the returned batch still carries the
// validation result so callers can report it.
func (s *StatementFiles) Load(ctx context.Context, month types.Month) (*Batch, error) {
	if len(s.paths) == 0 {
		return nil, fmt.Errorf("no statement files given")
	}

	batch := &Batch{Result: validation.NewResult()}
	seen := make(map[string]string)

	for _, path := range s.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		meta, err := utils.Describe(path)
		if err != nil {
			return nil, err
		}

		records, err := s.readRecords(path, meta.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", meta.Name, err)
		}

		txs, result := s.mapper.Map(records, path)
		batch.Result.Merge(result)
		batch.Files = append(batch.Files, meta)

		kept := 0
		for _, tx := range txs {
			if first, dup := seen[tx.ID]; dup {
				batch.Result.Add(&validation.ValidationError{
					Severity:   validation.SeverityError,
					SourceFile: path,
					Field:      "id",
					Value:      tx.ID,
					Message:    fmt.Sprintf("Transaction id already present in %s", first),
				})
				continue
			}
			seen[tx.ID] = meta.Name

			if !inMonth(month, tx.Date) {
				batch.OutOfMonth++
				continue
			}
			batch.Transactions = append(batch.Transactions, tx)
			kept++
		}

		s.opts.Logger.Info("statement loaded",
			"file", meta.Name,
			"format", meta.Format,
			"rows", result.RowsValidated,
			"accepted", result.RowsAccepted,
			"in_month", kept,
			"errors", result.ErrorCount,
			"warnings", result.WarningCount,
		)
	}

	if !batch.Result.IsValid {
		if !s.opts.SkipInvalidRows {
			return batch, batch.Result.Err()
		}
		s.opts.Logger.Warn("invalid statement rows skipped", "errors", batch.Result.ErrorCount)
	}

	if batch.OutOfMonth > 0 {
		s.opts.Logger.Debug("rows outside the month dropped", "month", month.String(), "count", batch.OutOfMonth)
	}

	return batch, nil
}

func (s *StatementFiles) readRecords(path, format string) ([]validation.Record, error) {
	switch format {
	case utils.FormatXLSX:
		table, err := xlsxparser.Parse(path, s.format.Sheet, s.format.CSV)
		if err != nil {
			return nil, err
		}
		return validation.Records(table.Rows, table.RowNumbers), nil

	default:
		parser, err := csvparser.NewStreamingParser(path, s.format.CSV)
		if err != nil {
			return nil, err
		}
		defer parser.Close()

		var records []validation.Record
		for parser.Next() {
			records = append(records, validation.Record{Row: parser.RowNumber(), Fields: parser.Row()})
		}
		if err := parser.Err(); err != nil {
			return nil, err
		}
		return records, nil
	}
}
