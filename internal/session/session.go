// =============================================================================
// Invoice Reconciler - Session Workflows
// =============================================================================
//
// A session reconciles the bank transactions of one month against that
// month's invoices. This package drives its lifecycle:
//
//   Tracker       starts a session and runs the matcher over it one
//                 transaction at a time, publishing a snapshot per step
//   Continuation  reopens a session that is not completed, re-fetches the
//                 month's invoices and hands back a WorkSession for review
//
// STATUS LIFECYCLE:
//
//   Start ─► processing ─┬─► completed   every debit matched
//                        ├─► saved       run finished with pending debits
//                        ├─► cancelled   run context cancelled mid-way
//                        └─► error       run failed, or found stalled
//
//   saved | cancelled | error ─► (resume, save) ─► completed | saved
//
// Sessions are values. Every write goes to the repository by session id;
// observers and work sessions only ever see deep copies.
//
// CONCURRENCY:
//   At most one run or save is active per session id. A second attempt fails
//   fast with ErrSessionBusy instead of waiting.
//
// =============================================================================

package session

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ginjaninja78/invoice-reconciler/internal/logging"
	"github.com/ginjaninja78/invoice-reconciler/internal/store"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

var (
	// ErrNotFound is returned when the session id does not exist. It is the
	// store's sentinel, so errors.Is works with either name.
	ErrNotFound = store.ErrNotFound

	// ErrSessionCompleted is returned when a completed session would be
	// modified.
	ErrSessionCompleted = errors.New("session is already completed")

	// ErrSessionBusy is returned when another run or save holds the session.
	ErrSessionBusy = errors.New("session is busy")

	// ErrIneligibleMatch is returned when a manual match would break the
	// matching rules.
	ErrIneligibleMatch = errors.New("ineligible match")
)

var tracer = otel.Tracer("github.com/ginjaninja78/invoice-reconciler/internal/session")

// Repository is the persistence the workflows need. *store.Store implements it.
type Repository interface {
	CreateSession(ctx context.Context, session types.Session) error
	UpdateSession(ctx context.Context, session types.Session) error
	GetSession(ctx context.Context, id string) (types.Session, error)
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]types.Session, error)
}

var _ Repository = (*store.Store)(nil)

// Observer receives a snapshot of the session after every step. Snapshots
// are deep copies; observers may keep or modify them.
type Observer func(snapshot types.Session)

// Options configures the workflows.
type Options struct {
	// StepDelay pauses between two transactions. Zero disables pacing.
	StepDelay time.Duration

	// ProgressSaveEvery persists a running session every N steps. Values
	// below 1 persist only the start and the final state.
	ProgressSaveEvery int

	Logger logging.Logger

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
