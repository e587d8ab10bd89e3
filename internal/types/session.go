package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a reconciliation session.
//
//	processing -> completed            every debit matched
//	processing -> saved                run finished with pending debits
//	processing -> cancelled            run context cancelled mid-way
//	processing -> error                run failed or was found stalled
//	saved|cancelled|error -> completed|saved   after a resume is saved
type SessionStatus string

const (
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusSaved      SessionStatus = "saved"
	StatusCancelled  SessionStatus = "cancelled"
	StatusError      SessionStatus = "error"
)

// Terminal reports whether the session can no longer be modified.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusSaved, StatusCancelled, StatusError:
		return true
	}
	return false
}

// ReconciliationMap associates a transaction id with the invoice uuid it
// paid. Keys and values are plain strings, so equality is by value.
type ReconciliationMap map[string]string

// Clone returns an independent copy of the map.
func (m ReconciliationMap) Clone() ReconciliationMap {
	out := make(ReconciliationMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Claimed returns the set of invoice uuids already used as values.
func (m ReconciliationMap) Claimed() map[string]bool {
	out := make(map[string]bool, len(m))
	for _, v := range m {
		out[v] = true
	}
	return out
}

// Equal reports whether both maps hold exactly the same pairs.
func (m ReconciliationMap) Equal(other ReconciliationMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Summary holds the counters derived from the session data.
type Summary struct {
	ReconciledCount        int             `json:"reconciledCount"`
	UnreconciledCount      int             `json:"unreconciledCount"`
	TotalTransactions      int             `json:"totalTransactions"`
	TotalDebitTransactions int             `json:"totalDebitTransactions"`
	ProgressPercentage     float64         `json:"progressPercentage"`
	ReconciledAmount       decimal.Decimal `json:"reconciledAmount"`
}

// SessionData is the working set of a session.
type SessionData struct {
	Transactions        []BankTransaction `json:"transactions"`
	ReconciliationMap   ReconciliationMap `json:"reconciliationMap"`
	BankStatements      []FileMeta        `json:"bankStatements"`
	ReconciliationMonth Month             `json:"reconciliationMonth"`
}

// Session is one reconciliation run for a month, possibly resumed across
// several sittings. Sessions are values: they are loaded from and written
// back to the store by ID, never shared by reference between views.
type Session struct {
	ID        string        `json:"id"`
	Date      time.Time     `json:"date"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Status    SessionStatus `json:"status"`
	Summary   Summary       `json:"summary"`
	Data      SessionData   `json:"data"`
}

// Clone returns a deep copy. Decimal values are immutable, so copying the
// struct is enough for them.
func (s Session) Clone() Session {
	out := s
	out.Data.Transactions = append([]BankTransaction(nil), s.Data.Transactions...)
	out.Data.BankStatements = append([]FileMeta(nil), s.Data.BankStatements...)
	out.Data.ReconciliationMap = s.Data.ReconciliationMap.Clone()
	return out
}

// Transaction looks up a transaction of the session by id.
func (s Session) Transaction(id string) (BankTransaction, bool) {
	for _, tx := range s.Data.Transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return BankTransaction{}, false
}

// PendingDebits returns the debit transactions not yet present in the map,
// in session order.
func (s Session) PendingDebits() []BankTransaction {
	var out []BankTransaction
	for _, tx := range s.Data.Transactions {
		if !tx.IsDebit() {
			continue
		}
		if _, ok := s.Data.ReconciliationMap[tx.ID]; !ok {
			out = append(out, tx)
		}
	}
	return out
}
