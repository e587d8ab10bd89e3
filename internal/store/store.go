// =============================================================================
// Invoice Reconciler - Store
// =============================================================================
//
// The store persists reconciliation sessions and the invoice ledger. It is a
// thin database/sql layer that runs on two drivers:
//
//   sqlite    modernc.org/sqlite (pure Go, default; DSN is a file path)
//   postgres  github.com/lib/pq  (DSN is a connection URL)
//
// Queries are written with "?" placeholders and rebound for postgres.
// Timestamps are stored as fixed-width UTC text so they sort and compare the
// same way on both drivers. Amounts are stored as decimal strings.
//
// =============================================================================

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
	"github.com/ginjaninja78/invoice-reconciler/internal/logging"
)

// ErrNotFound is returned when a session or invoice id does not exist.
var ErrNotFound = errors.New("not found")

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeLayout is fixed width so text comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the session and invoice repository. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	driver string
	log    logging.Logger
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, log logging.Logger) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "" && dir != "." && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", cfg.DSN)
		if err == nil {
			// A single connection serializes writers and avoids SQLITE_BUSY.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := New(ctx, db, cfg.Driver, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle and applies the schema.
func New(ctx context.Context, db *sql.DB, driver string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}
	s := &Store{db: db, driver: driver, log: log}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name the store runs on.
func (s *Store) Driver() string {
	return s.driver
}

// =============================================================================
// SCHEMA
// =============================================================================

func (s *Store) migrate(ctx context.Context) error {
	invoiceKey := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		invoiceKey = "seq BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			month TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			summary TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_month ON sessions (month)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			` + invoiceKey + `,
			uuid TEXT NOT NULL UNIQUE,
			issuer_name TEXT NOT NULL,
			invoice_date TEXT NOT NULL,
			month TEXT NOT NULL,
			total TEXT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_month ON invoices (month, status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	s.log.Debug("database schema ready", "driver", s.driver)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// rebind rewrites "?" placeholders as "$n" for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
