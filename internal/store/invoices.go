package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/invoice-reconciler/internal/source"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

const invoiceDateLayout = "2006-01-02"

var _ source.InvoiceSource = (*Store)(nil)

// UpsertInvoices inserts new invoices and refreshes existing ones (matched by
// uuid) in a single transaction. Existing invoices keep their position in
// the ledger order. It returns the number of invoices written.
func (s *Store) UpsertInvoices(ctx context.Context, invoices []types.Invoice) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO invoices (uuid, issuer_name, invoice_date, month, total, currency, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uuid) DO UPDATE SET
			issuer_name = excluded.issuer_name,
			invoice_date = excluded.invoice_date,
			month = excluded.month,
			total = excluded.total,
			currency = excluded.currency,
			status = excluded.status`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare invoice upsert: %w", err)
	}
	defer stmt.Close()

	for _, inv := range invoices {
		if inv.UUID == "" {
			return 0, fmt.Errorf("invoice without uuid")
		}
		status := inv.Status
		if status == "" {
			status = types.InvoiceActive
		}

		_, err := stmt.ExecContext(ctx,
			inv.UUID,
			inv.IssuerName,
			inv.Date.Format(invoiceDateLayout),
			types.MonthOf(inv.Date).String(),
			inv.Total.String(),
			inv.Currency,
			string(status),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert invoice %s: %w", inv.UUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit invoices: %w", err)
	}
	return len(invoices), nil
}

// ListInvoices returns the invoices of a month in ledger order (the order
// they were first imported). With no statuses every status is returned. A
// zero month returns every month.
func (s *Store) ListInvoices(ctx context.Context, month types.Month, statuses ...types.InvoiceStatus) ([]types.Invoice, error) {
	query := `SELECT uuid, issuer_name, invoice_date, total, currency, status FROM invoices WHERE 1 = 1`
	var args []interface{}

	if !month.IsZero() {
		query += ` AND month = ?`
		args = append(args, month.String())
	}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []types.Invoice{}
	for rows.Next() {
		var (
			inv         types.Invoice
			date, total string
			status      string
		)
		if err := rows.Scan(&inv.UUID, &inv.IssuerName, &date, &total, &inv.Currency, &status); err != nil {
			return nil, fmt.Errorf("failed to read invoice: %w", err)
		}

		inv.Date, err = time.Parse(invoiceDateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invoice %s has invalid date %q: %w", inv.UUID, date, err)
		}
		inv.Total, err = decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("invoice %s has invalid total %q: %w", inv.UUID, total, err)
		}
		inv.Status = types.InvoiceStatus(status)

		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// SetInvoiceStatus changes the status of one invoice. It returns ErrNotFound
// when the uuid does not exist.
func (s *Store) SetInvoiceStatus(ctx context.Context, uuid string, status types.InvoiceStatus) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE invoices SET status = ? WHERE uuid = ?`), string(status), uuid)
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", uuid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", uuid, err)
	}
	if n == 0 {
		return fmt.Errorf("invoice %s: %w", uuid, ErrNotFound)
	}
	return nil
}
