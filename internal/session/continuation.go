package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ginjaninja78/invoice-reconciler/internal/matcher"
	"github.com/ginjaninja78/invoice-reconciler/internal/source"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// Continuation reopens sessions that are not completed.
type Continuation struct {
	tracker  *Tracker
	invoices source.InvoiceSource
}

// NewContinuation creates a continuation handler. It shares the tracker's
// repository and session locks, so a resume cannot save over a running
// session.
func NewContinuation(tracker *Tracker, invoices source.InvoiceSource) *Continuation {
	return &Continuation{tracker: tracker, invoices: invoices}
}

// Resume loads a stored session, re-fetches the active invoices of its month
// and returns a work session holding deep copies of the stored data.
//
// Nothing is written: if the invoice fetch fails the stored session is left
// exactly as it was. Completed sessions are refused with
// ErrSessionCompleted; sessions held by a run return ErrSessionBusy.
func (c *Continuation) Resume(ctx context.Context, id string) (*WorkSession, error) {
	ctx, span := tracer.Start(ctx, "session.Resume", trace.WithAttributes(attribute.String("reconciler.session", id)))
	defer span.End()

	stored, err := c.tracker.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Status.Terminal() {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionCompleted)
	}
	if c.tracker.locks.isHeld(id) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionBusy)
	}

	month := stored.Data.ReconciliationMonth
	invoices, err := c.invoices.ListInvoices(ctx, month, types.InvoiceActive)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invoice fetch failed")
		return nil, fmt.Errorf("failed to fetch invoices for %s: %w", month, err)
	}

	work := &WorkSession{
		owner:    c,
		session:  stored.Clone(),
		invoices: types.FilterInvoices(invoices, types.InvoiceActive),
	}
	if work.session.Data.ReconciliationMap == nil {
		work.session.Data.ReconciliationMap = types.ReconciliationMap{}
	}

	c.tracker.opts.Logger.Info("session resumed",
		"session", id,
		"status", stored.Status,
		"pending", len(work.Pending()),
		"invoices", len(work.invoices),
	)
	return work, nil
}

// =============================================================================
// WORK SESSION
// =============================================================================

// WorkSession is a detached copy of a session under review. Changes stay in
// memory until Save. Not safe for concurrent use.
type WorkSession struct {
	owner    *Continuation
	session  types.Session
	invoices []types.Invoice
}

// Session returns a deep copy of the working state.
func (w *WorkSession) Session() types.Session {
	return w.session.Clone()
}

// Invoices returns the active invoices fetched on resume, in source order.
func (w *WorkSession) Invoices() []types.Invoice {
	return append([]types.Invoice(nil), w.invoices...)
}

// Pending returns the debit transactions without an invoice.
func (w *WorkSession) Pending() []types.BankTransaction {
	return w.session.PendingDebits()
}

// Unclaimed returns the fetched invoices no transaction has claimed yet.
func (w *WorkSession) Unclaimed() []types.Invoice {
	claimed := w.session.Data.ReconciliationMap.Claimed()
	out := make([]types.Invoice, 0, len(w.invoices))
	for _, inv := range w.invoices {
		if !claimed[inv.UUID] {
			out = append(out, inv)
		}
	}
	return out
}

// AutoMatch runs the matcher over the pending debits against the unclaimed
// invoices. Existing pairs are kept. It returns the number of new pairs.
func (w *WorkSession) AutoMatch() int {
	m := matcher.NewWithMatches(w.invoices, w.session.Data.ReconciliationMap)

	added := 0
	for _, tx := range w.session.Data.Transactions {
		if invoiceUUID, ok := m.Step(tx); ok {
			w.session.Data.ReconciliationMap[tx.ID] = invoiceUUID
			added++
		}
	}

	summarize(&w.session, w.session.Summary.ProgressPercentage)
	return added
}

// Match pairs a transaction with an invoice by hand. The pair must satisfy
// the same rules as automatic matching: a pending debit, an unclaimed active
// invoice, and an exactly equal amount.
func (w *WorkSession) Match(transactionID, invoiceUUID string) error {
	tx, ok := w.session.Transaction(transactionID)
	if !ok {
		return fmt.Errorf("transaction %s is not part of session %s: %w", transactionID, w.session.ID, ErrIneligibleMatch)
	}
	if !tx.IsDebit() {
		return fmt.Errorf("transaction %s is a %s: %w", transactionID, tx.Type, ErrIneligibleMatch)
	}
	if current, done := w.session.Data.ReconciliationMap[transactionID]; done {
		return fmt.Errorf("transaction %s is already matched to %s: %w", transactionID, current, ErrIneligibleMatch)
	}

	var invoice *types.Invoice
	for i := range w.invoices {
		if w.invoices[i].UUID == invoiceUUID {
			invoice = &w.invoices[i]
			break
		}
	}
	if invoice == nil {
		return fmt.Errorf("invoice %s is not an active invoice of %s: %w", invoiceUUID, w.session.Data.ReconciliationMonth, ErrIneligibleMatch)
	}
	if w.session.Data.ReconciliationMap.Claimed()[invoiceUUID] {
		return fmt.Errorf("invoice %s is already claimed: %w", invoiceUUID, ErrIneligibleMatch)
	}
	if !invoice.Total.Equal(tx.Amount) {
		return fmt.Errorf("invoice total %s differs from transaction amount %s: %w",
			invoice.Total.String(), tx.Amount.String(), ErrIneligibleMatch)
	}

	w.session.Data.ReconciliationMap[transactionID] = invoiceUUID
	summarize(&w.session, w.session.Summary.ProgressPercentage)
	return nil
}

// Save writes the work session back by id. The summary is recomputed, the
// progress set to 100 and the status decided by the completion rule.
//
// Pairs stored by someone else since the resume are kept unless they
// conflict with a pair of this work session. Pairs present at resume are
// never removed.
func (w *WorkSession) Save(ctx context.Context) (types.Session, error) {
	t := w.owner.tracker
	id := w.session.ID

	ctx, span := tracer.Start(ctx, "session.Save", trace.WithAttributes(attribute.String("reconciler.session", id)))
	defer span.End()

	if !t.locks.tryLock(id) {
		return types.Session{}, fmt.Errorf("session %s: %w", id, ErrSessionBusy)
	}
	defer t.locks.unlock(id)

	current, err := t.repo.GetSession(ctx, id)
	if err != nil {
		return types.Session{}, err
	}
	if current.Status.Terminal() {
		return types.Session{}, fmt.Errorf("session %s: %w", id, ErrSessionCompleted)
	}

	next := w.session.Clone()
	mergeStored(&next, current.Data.ReconciliationMap, t)

	summarize(&next, 100)
	next.Status = finalStatus(next)
	next.UpdatedAt = t.opts.Now()

	if err := t.repo.UpdateSession(ctx, next); err != nil {
		span.RecordError(err)
		return types.Session{}, err
	}

	w.session = next.Clone()
	span.SetAttributes(attribute.String("reconciler.status", string(next.Status)))
	t.opts.Logger.Info("session saved",
		"session", id,
		"status", next.Status,
		"reconciled", next.Summary.ReconciledCount,
		"pending", next.Summary.UnreconciledCount,
	)
	return next, nil
}

// mergeStored adds stored pairs missing from s, skipping any that would
// reuse a transaction or an invoice already paired in s.
func mergeStored(s *types.Session, stored types.ReconciliationMap, t *Tracker) {
	claimed := s.Data.ReconciliationMap.Claimed()
	for txID, invoiceUUID := range stored {
		if existing, ok := s.Data.ReconciliationMap[txID]; ok {
			if existing != invoiceUUID {
				t.opts.Logger.Warn("stored match replaced", "session", s.ID, "transaction", txID, "stored", invoiceUUID, "kept", existing)
			}
			continue
		}
		if claimed[invoiceUUID] {
			t.opts.Logger.Warn("stored match dropped, invoice claimed twice", "session", s.ID, "transaction", txID, "invoice", invoiceUUID)
			continue
		}
		s.Data.ReconciliationMap[txID] = invoiceUUID
		claimed[invoiceUUID] = true
	}
}
