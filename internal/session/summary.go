package session

import (
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// summarize recomputes the counters of s from its data. Only debit
// transactions present in the map count as reconciled.
func summarize(s *types.Session, progress float64) {
	var (
		debits     int
		reconciled int
		amount     = decimal.Zero
	)

	for _, tx := range s.Data.Transactions {
		if !tx.IsDebit() {
			continue
		}
		debits++
		if _, ok := s.Data.ReconciliationMap[tx.ID]; ok {
			reconciled++
			amount = amount.Add(tx.Amount)
		}
	}

	s.Summary = types.Summary{
		ReconciledCount:        reconciled,
		UnreconciledCount:      debits - reconciled,
		TotalTransactions:      len(s.Data.Transactions),
		TotalDebitTransactions: debits,
		ProgressPercentage:     progress,
		ReconciledAmount:       amount,
	}
}

// stepProgress is the percentage of transactions processed.
func stepProgress(processed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(processed) / float64(total) * 100
}

// finalStatus applies the completion rule.
func finalStatus(s types.Session) types.SessionStatus {
	if s.Summary.ReconciledCount == s.Summary.TotalDebitTransactions {
		return types.StatusCompleted
	}
	return types.StatusSaved
}
