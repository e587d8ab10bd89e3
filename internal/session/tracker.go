package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ginjaninja78/invoice-reconciler/internal/matcher"
	"github.com/ginjaninja78/invoice-reconciler/internal/source"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// Tracker starts sessions and runs the matcher over them.
type Tracker struct {
	repo  Repository
	opts  Options
	locks *keyedLocks
}

// NewTracker creates a tracker persisting to repo.
func NewTracker(repo Repository, opts Options) *Tracker {
	opts.applyDefaults()
	return &Tracker{repo: repo, opts: opts, locks: newKeyedLocks()}
}

// =============================================================================
// START
// =============================================================================

// Start creates and persists a new session in "processing" with progress 0.
// The transactions are copied; their order is the order the run will follow.
func (t *Tracker) Start(ctx context.Context, month types.Month, transactions []types.BankTransaction, files []types.FileMeta) (types.Session, error) {
	if month.IsZero() {
		return types.Session{}, fmt.Errorf("reconciliation month is required")
	}

	seen := make(map[string]bool, len(transactions))
	for _, tx := range transactions {
		if tx.ID == "" {
			return types.Session{}, fmt.Errorf("transaction without id")
		}
		if seen[tx.ID] {
			return types.Session{}, fmt.Errorf("duplicate transaction id %q", tx.ID)
		}
		seen[tx.ID] = true
	}

	now := t.opts.Now()
	session := types.Session{
		ID:        uuid.NewString(),
		Date:      now,
		UpdatedAt: now,
		Status:    types.StatusProcessing,
		Data: types.SessionData{
			Transactions:        append([]types.BankTransaction(nil), transactions...),
			ReconciliationMap:   types.ReconciliationMap{},
			BankStatements:      append([]types.FileMeta(nil), files...),
			ReconciliationMonth: month,
		},
	}
	summarize(&session, 0)

	if err := t.repo.CreateSession(ctx, session); err != nil {
		return types.Session{}, err
	}

	t.opts.Logger.Info("session started",
		"session", session.ID,
		"month", month.String(),
		"transactions", session.Summary.TotalTransactions,
		"debits", session.Summary.TotalDebitTransactions,
	)
	return session.Clone(), nil
}

// =============================================================================
// RUN
// =============================================================================

// Run matches the session's transactions against invoices, one transaction
// per step, in input order. Only active invoices are considered.
//
// After every step the summary is recomputed and a snapshot is published to
// observer (which may be nil). The last snapshot already carries the final
// status. When ctx is cancelled between steps the session is stored as
// "cancelled" with its partial map, and the context error is returned along
// with the session.
func (t *Tracker) Run(ctx context.Context, sessionID string, invoices []types.Invoice, observer Observer) (types.Session, error) {
	if !t.locks.tryLock(sessionID) {
		return types.Session{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionBusy)
	}
	defer t.locks.unlock(sessionID)

	ctx, span := tracer.Start(ctx, "session.Run", trace.WithAttributes(attribute.String("reconciler.session", sessionID)))
	defer span.End()

	session, err := t.repo.GetSession(ctx, sessionID)
	if err != nil {
		return types.Session{}, err
	}
	switch session.Status {
	case types.StatusProcessing:
	case types.StatusCompleted:
		return types.Session{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionCompleted)
	default:
		return types.Session{}, fmt.Errorf("session %s is %s; resume it instead of running it", sessionID, session.Status)
	}

	span.SetAttributes(
		attribute.String("reconciler.month", session.Data.ReconciliationMonth.String()),
		attribute.Int("reconciler.transactions", len(session.Data.Transactions)),
		attribute.Int("reconciler.invoices", len(invoices)),
	)

	m := matcher.NewWithMatches(invoices, session.Data.ReconciliationMap)
	total := len(session.Data.Transactions)
	log := t.opts.Logger

	for i, tx := range session.Data.Transactions {
		if err := ctx.Err(); err != nil {
			return t.cancel(ctx, session, i, err, span)
		}

		_, stepSpan := tracer.Start(ctx, "session.Step", trace.WithAttributes(attribute.String("reconciler.transaction", tx.ID)))
		if invoiceUUID, ok := m.Step(tx); ok {
			session.Data.ReconciliationMap[tx.ID] = invoiceUUID
			stepSpan.SetAttributes(attribute.String("reconciler.invoice", invoiceUUID))
			log.Debug("transaction matched", "session", session.ID, "transaction", tx.ID, "invoice", invoiceUUID, "amount", tx.Amount.String())
		}
		stepSpan.End()

		processed := i + 1
		summarize(&session, stepProgress(processed, total))
		session.UpdatedAt = t.opts.Now()
		if processed == total {
			session.Status = finalStatus(session)
		}

		if observer != nil {
			observer(session.Clone())
		}

		if processed == total {
			break
		}

		if every := t.opts.ProgressSaveEvery; every > 0 && processed%every == 0 {
			if err := t.repo.UpdateSession(ctx, session); err != nil {
				if ctx.Err() != nil {
					return t.cancel(ctx, session, processed, ctx.Err(), span)
				}
				return t.fail(ctx, session, err, span)
			}
		}

		if err := t.pause(ctx); err != nil {
			return t.cancel(ctx, session, processed, err, span)
		}
	}

	if total == 0 {
		summarize(&session, 100)
		session.Status = finalStatus(session)
		session.UpdatedAt = t.opts.Now()
	}

	if err := t.repo.UpdateSession(context.WithoutCancel(ctx), session); err != nil {
		return t.fail(ctx, session, err, span)
	}

	span.SetAttributes(
		attribute.String("reconciler.status", string(session.Status)),
		attribute.Int("reconciler.reconciled", session.Summary.ReconciledCount),
	)
	log.Info("session finished",
		"session", session.ID,
		"status", session.Status,
		"reconciled", session.Summary.ReconciledCount,
		"pending", session.Summary.UnreconciledCount,
		"amount", session.Summary.ReconciledAmount.StringFixed(2),
	)
	return session.Clone(), nil
}

// pause waits StepDelay or until ctx is done.
func (t *Tracker) pause(ctx context.Context) error {
	if t.opts.StepDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.opts.StepDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cancel stores the partial session as cancelled.
func (t *Tracker) cancel(ctx context.Context, session types.Session, processed int, cause error, span trace.Span) (types.Session, error) {
	summarize(&session, stepProgress(processed, len(session.Data.Transactions)))
	session.Status = types.StatusCancelled
	session.UpdatedAt = t.opts.Now()

	if err := t.repo.UpdateSession(context.WithoutCancel(ctx), session); err != nil {
		t.opts.Logger.Error("failed to store cancelled session", "session", session.ID, "error", err)
		return session.Clone(), errors.Join(cause, err)
	}

	span.SetStatus(codes.Error, "cancelled")
	t.opts.Logger.Warn("session cancelled",
		"session", session.ID,
		"processed", processed,
		"reconciled", session.Summary.ReconciledCount,
	)
	return session.Clone(), cause
}

// fail stores the session as error.
func (t *Tracker) fail(ctx context.Context, session types.Session, cause error, span trace.Span) (types.Session, error) {
	session.Status = types.StatusError
	session.UpdatedAt = t.opts.Now()

	span.RecordError(cause)
	span.SetStatus(codes.Error, "run failed")

	if err := t.repo.UpdateSession(context.WithoutCancel(ctx), session); err != nil {
		t.opts.Logger.Error("failed to store failed session", "session", session.ID, "error", err)
	}
	t.opts.Logger.Error("session failed", "session", session.ID, "error", cause)
	return session.Clone(), fmt.Errorf("session %s failed: %w", session.ID, cause)
}

// =============================================================================
// RECONCILE
// =============================================================================

// Request describes a full reconciliation of one month.
type Request struct {
	Month        types.Month
	Transactions source.TransactionSource
	Invoices     source.InvoiceSource
	Files        []types.FileMeta
	Observer     Observer
}

// Reconcile fetches the month's transactions and active invoices, then
// starts and runs a session. Nothing is stored when a fetch fails.
func (t *Tracker) Reconcile(ctx context.Context, req Request) (types.Session, error) {
	ctx, span := tracer.Start(ctx, "session.Reconcile", trace.WithAttributes(attribute.String("reconciler.month", req.Month.String())))
	defer span.End()

	transactions, err := req.Transactions.ListTransactions(ctx, req.Month)
	if err != nil {
		span.RecordError(err)
		return types.Session{}, fmt.Errorf("failed to load transactions: %w", err)
	}

	invoices, err := req.Invoices.ListInvoices(ctx, req.Month, types.InvoiceActive)
	if err != nil {
		span.RecordError(err)
		return types.Session{}, fmt.Errorf("failed to load invoices: %w", err)
	}

	session, err := t.Start(ctx, req.Month, transactions, req.Files)
	if err != nil {
		return types.Session{}, err
	}
	return t.Run(ctx, session.ID, invoices, req.Observer)
}

// =============================================================================
// STALL RECOVERY
// =============================================================================

// RecoverStalled moves sessions that are still "processing" without an
// update for longer than olderThan to "error", so they can be resumed.
// Sessions running in this process are left alone. It returns the ids of
// the sessions it moved.
func (t *Tracker) RecoverStalled(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := t.opts.Now().Add(-olderThan)

	stale, err := t.repo.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var recovered []string
	for _, session := range stale {
		if !t.locks.tryLock(session.ID) {
			continue
		}

		session.Status = types.StatusError
		session.UpdatedAt = t.opts.Now()
		err := t.repo.UpdateSession(ctx, session)
		t.locks.unlock(session.ID)
		if err != nil {
			return recovered, err
		}

		t.opts.Logger.Warn("stalled session marked as error", "session", session.ID, "month", session.Data.ReconciliationMonth.String())
		recovered = append(recovered, session.ID)
	}
	return recovered, nil
}
