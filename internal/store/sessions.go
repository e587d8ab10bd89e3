package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// SessionFilter narrows ListSessions. Zero values mean "any".
type SessionFilter struct {
	Status types.SessionStatus
	Month  types.Month

	// Limit caps the number of sessions returned; 0 means no limit.
	Limit int
}

const sessionColumns = "id, month, status, created_at, updated_at, summary, data"

// CreateSession inserts a new session. The id must not exist yet.
func (s *Store) CreateSession(ctx context.Context, session types.Session) error {
	row, err := encodeSession(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		row.id, row.month, row.status, row.createdAt, row.updatedAt, row.summary, row.data,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	return nil
}

// UpdateSession replaces the stored state of an existing session, addressed
// by its id. It returns ErrNotFound when the id does not exist.
func (s *Store) UpdateSession(ctx context.Context, session types.Session) error {
	row, err := encodeSession(session)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE sessions SET month = ?, status = ?, updated_at = ?, summary = ?, data = ? WHERE id = ?`),
		row.month, row.status, row.updatedAt, row.summary, row.data, row.id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (types.Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`), id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return session, nil
}

// ListSessions returns sessions matching the filter, newest first.
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1 = 1`
	var args []interface{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Month.IsZero() {
		query += ` AND month = ?`
		args = append(args, filter.Month.String())
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return s.querySessions(ctx, query, args...)
}

// ListStaleProcessing returns sessions still in "processing" whose last
// update is older than olderThan.
func (s *Store) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]types.Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		string(types.StatusProcessing), formatTime(olderThan),
	)
}

// DeleteSession removes a session. It returns ErrNotFound when the id does
// not exist.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) querySessions(ctx context.Context, query string, args ...interface{}) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []types.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// =============================================================================
// ENCODING
// =============================================================================

type sessionRow struct {
	id, month, status, createdAt, updatedAt, summary, data string
}

func encodeSession(session types.Session) (sessionRow, error) {
	if session.ID == "" {
		return sessionRow{}, fmt.Errorf("session id is empty")
	}
	if !session.Status.Valid() {
		return sessionRow{}, fmt.Errorf("session %s has unknown status %q", session.ID, session.Status)
	}

	summary, err := json.Marshal(session.Summary)
	if err != nil {
		return sessionRow{}, fmt.Errorf("failed to encode session summary: %w", err)
	}
	data, err := json.Marshal(session.Data)
	if err != nil {
		return sessionRow{}, fmt.Errorf("failed to encode session data: %w", err)
	}

	updated := session.UpdatedAt
	if updated.IsZero() {
		updated = session.Date
	}

	return sessionRow{
		id:        session.ID,
		month:     session.Data.ReconciliationMonth.String(),
		status:    string(session.Status),
		createdAt: formatTime(session.Date),
		updatedAt: formatTime(updated),
		summary:   string(summary),
		data:      string(data),
	}, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(sc scanner) (types.Session, error) {
	var row sessionRow
	if err := sc.Scan(&row.id, &row.month, &row.status, &row.createdAt, &row.updatedAt, &row.summary, &row.data); err != nil {
		return types.Session{}, err
	}

	created, err := parseTime(row.createdAt)
	if err != nil {
		return types.Session{}, err
	}
	updated, err := parseTime(row.updatedAt)
	if err != nil {
		return types.Session{}, err
	}

	session := types.Session{
		ID:        row.id,
		Date:      created,
		UpdatedAt: updated,
		Status:    types.SessionStatus(row.status),
	}
	if err := json.Unmarshal([]byte(row.summary), &session.Summary); err != nil {
		return types.Session{}, fmt.Errorf("failed to decode summary of session %s: %w", row.id, err)
	}
	if err := json.Unmarshal([]byte(row.data), &session.Data); err != nil {
		return types.Session{}, fmt.Errorf("failed to decode data of session %s: %w", row.id, err)
	}
	if session.Data.ReconciliationMap == nil {
		session.Data.ReconciliationMap = types.ReconciliationMap{}
	}
	return session, nil
}
