package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/invoice-reconciler/internal/source"
	"github.com/ginjaninja78/invoice-reconciler/internal/store"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// savedSession runs a session that ends "saved": T1 matches A, T3 (30) stays
// pending, T2 is a credit.
func savedSession(t *testing.T, tr *Tracker, mem *source.Memory) types.Session {
	t.Helper()
	ctx := context.Background()

	s := startRun(t, tr, []types.BankTransaction{debit("T1", "100"), credit("T2", "5"), debit("T3", "30")})
	invoices, err := mem.ListInvoices(ctx, march, types.InvoiceActive)
	require.NoError(t, err)

	final, err := tr.Run(ctx, s.ID, invoices, nil)
	require.NoError(t, err)
	require.Equal(t, types.StatusSaved, final.Status)
	return final
}

func newContinuationEnv(t *testing.T) (*store.Store, *Tracker, *source.Memory, *Continuation) {
	db := openStore(t)
	tr := NewTracker(db, Options{})
	mem := source.NewMemory(nil, []types.Invoice{active("A", "100")})
	return db, tr, mem, NewContinuation(tr, mem)
}

func TestContinuation_ResumeRefetchesInvoices(t *testing.T) {
	db, tr, mem, cont := newContinuationEnv(t)
	ctx := context.Background()
	s := savedSession(t, tr, mem)

	// The missing invoice arrives after the run.
	mem.AddInvoices(active("B", "30.00"))

	work, err := cont.Resume(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, work.Invoices(), 2)
	require.Len(t, work.Unclaimed(), 1)
	assert.Equal(t, "B", work.Unclaimed()[0].UUID)
	require.Len(t, work.Pending(), 1)
	assert.Equal(t, "T3", work.Pending()[0].ID)

	assert.Equal(t, 1, work.AutoMatch())
	assert.Empty(t, work.Pending())

	saved, err := work.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, saved.Status)
	assert.Equal(t, float64(100), saved.Summary.ProgressPercentage)

	stored, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, stored.Status)
	assert.Equal(t, types.ReconciliationMap{"T1": "A", "T3": "B"}, stored.Data.ReconciliationMap)
	assert.Equal(t, s.ID, stored.ID, "saved in place")

	_, err = cont.Resume(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestContinuation_ResumeIgnoresInactiveInvoices(t *testing.T) {
	_, tr, mem, cont := newContinuationEnv(t)
	s := savedSession(t, tr, mem)

	cancelled := active("C", "30")
	cancelled.Status = types.InvoiceCancelled
	mem.AddInvoices(cancelled)

	work, err := cont.Resume(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Zero(t, work.AutoMatch())
	assert.ErrorIs(t, work.Match("T3", "C"), ErrIneligibleMatch)
}

func TestContinuation_DeepCopies(t *testing.T) {
	db, tr, mem, cont := newContinuationEnv(t)
	ctx := context.Background()
	s := savedSession(t, tr, mem)
	mem.AddInvoices(active("B", "30"))

	work, err := cont.Resume(ctx, s.ID)
	require.NoError(t, err)

	view := work.Session()
	view.Data.ReconciliationMap["T3"] = "hacked"
	view.Data.Transactions[0].ID = "hacked"
	assert.Len(t, work.Pending(), 1, "views do not alias the work session")
	assert.Equal(t, "T1", work.Session().Data.Transactions[0].ID)

	require.NoError(t, work.Match("T3", "B"))

	stored, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReconciliationMap{"T1": "A"}, stored.Data.ReconciliationMap, "nothing written before Save")
	assert.Equal(t, types.StatusSaved, stored.Status)
}

func TestContinuation_ResumeAndSaveIsIdempotent(t *testing.T) {
	db, tr, mem, cont := newContinuationEnv(t)
	ctx := context.Background()
	s := savedSession(t, tr, mem)

	for i := 0; i < 2; i++ {
		work, err := cont.Resume(ctx, s.ID)
		require.NoError(t, err)
		_, err = work.Save(ctx)
		require.NoError(t, err)

		stored, err := db.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusSaved, stored.Status)
		assert.True(t, stored.Data.ReconciliationMap.Equal(s.Data.ReconciliationMap))
		assert.Equal(t, s.Summary.ReconciledCount, stored.Summary.ReconciledCount)
		assert.True(t, s.Summary.ReconciledAmount.Equal(stored.Summary.ReconciledAmount))
	}
}

func TestContinuation_FetchFailureLeavesSessionUntouched(t *testing.T) {
	db, tr, mem, _ := newContinuationEnv(t)
	ctx := context.Background()
	s := savedSession(t, tr, mem)

	before, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)

	broken := NewContinuation(tr, source.InvoiceSourceFunc(func(context.Context, types.Month, ...types.InvoiceStatus) ([]types.Invoice, error) {
		return nil, errors.New("ledger offline")
	}))
	work, err := broken.Resume(ctx, s.ID)
	assert.Nil(t, work)
	assert.ErrorContains(t, err, "ledger offline")

	after, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.Equal(t, before.Summary.ProgressPercentage, after.Summary.ProgressPercentage)
	assert.True(t, before.Data.ReconciliationMap.Equal(after.Data.ReconciliationMap))
}

func TestContinuation_ResumesCancelledAndErrorSessions(t *testing.T) {
	db, tr, _, cont := newContinuationEnv(t)
	ctx := context.Background()

	for _, status := range []types.SessionStatus{types.StatusCancelled, types.StatusError} {
		s := startRun(t, tr, []types.BankTransaction{debit("T1", "100")})
		s.Status = status
		require.NoError(t, db.UpdateSession(ctx, s))

		work, err := cont.Resume(ctx, s.ID)
		require.NoError(t, err, status)
		assert.Equal(t, 1, work.AutoMatch())

		saved, err := work.Save(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.StatusCompleted, saved.Status)
	}
}

func TestContinuation_ResumeUnknown(t *testing.T) {
	_, _, _, cont := newContinuationEnv(t)
	_, err := cont.Resume(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkSession_MatchRules(t *testing.T) {
	_, tr, mem, cont := newContinuationEnv(t)
	s := savedSession(t, tr, mem)
	mem.AddInvoices(active("B", "30.01"), active("C", "30.00"), active("D", "5"))

	work, err := cont.Resume(context.Background(), s.ID)
	require.NoError(t, err)

	tests := []struct {
		name        string
		transaction string
		invoice     string
	}{
		{"unknown transaction", "T9", "C"},
		{"credit transaction", "T2", "D"},
		{"transaction already matched", "T1", "C"},
		{"unknown invoice", "T3", "Z"},
		{"invoice already claimed", "T3", "A"},
		{"amount differs by a cent", "T3", "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, work.Match(tt.transaction, tt.invoice), ErrIneligibleMatch)
		})
	}
	assert.Len(t, work.Pending(), 1, "failed matches change nothing")

	require.NoError(t, work.Match("T3", "C"), "30 equals 30.00")
	assert.Empty(t, work.Pending())
	assert.ErrorIs(t, work.Match("T3", "C"), ErrIneligibleMatch)

	view := work.Session()
	assert.Equal(t, 2, view.Summary.ReconciledCount)
	assert.Equal(t, 0, view.Summary.UnreconciledCount)
}

func TestWorkSession_AutoMatchKeepsExistingPairs(t *testing.T) {
	_, tr, mem, cont := newContinuationEnv(t)
	s := savedSession(t, tr, mem)

	// A second invoice of 100 would tie with A, but T1 is already matched.
	mem.AddInvoices(active("A2", "100"), active("B", "30"))

	work, err := cont.Resume(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, work.AutoMatch())
	assert.Equal(t, types.ReconciliationMap{"T1": "A", "T3": "B"}, work.Session().Data.ReconciliationMap)
	assert.Zero(t, work.AutoMatch(), "second pass finds nothing new")
}

func TestWorkSession_SaveMergesConcurrentPairs(t *testing.T) {
	db, tr, mem, cont := newContinuationEnv(t)
	ctx := context.Background()

	s := startRun(t, tr, []types.BankTransaction{debit("T1", "10"), debit("T2", "20"), debit("T3", "30")})
	_, err := tr.Run(ctx, s.ID, nil, nil)
	require.NoError(t, err)
	mem.AddInvoices(active("X", "10"), active("Y", "20"))

	first, err := cont.Resume(ctx, s.ID)
	require.NoError(t, err)
	second, err := cont.Resume(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, first.Match("T1", "X"))
	_, err = first.Save(ctx)
	require.NoError(t, err)

	require.NoError(t, second.Match("T2", "Y"))
	saved, err := second.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ReconciliationMap{"T1": "X", "T2": "Y"}, saved.Data.ReconciliationMap)
	assert.Equal(t, types.StatusSaved, saved.Status)

	stored, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Summary.ReconciledCount)
}

func TestWorkSession_SaveRefusesCompletedSession(t *testing.T) {
	_, tr, mem, cont := newContinuationEnv(t)
	ctx := context.Background()
	s := savedSession(t, tr, mem)
	mem.AddInvoices(active("B", "30"))

	first, err := cont.Resume(ctx, s.ID)
	require.NoError(t, err)
	stale, err := cont.Resume(ctx, s.ID)
	require.NoError(t, err)

	first.AutoMatch()
	saved, err := first.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, saved.Status)

	_, err = stale.Save(ctx)
	assert.ErrorIs(t, err, ErrSessionCompleted)
}
