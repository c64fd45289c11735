package core

// SummaryTotals are the per-view, per-period aggregates. Balance is
// deliberately absent: callers derive it as TotalIncome - TotalExpense.
type SummaryTotals struct {
	TotalIncome  Money
	TotalExpense Money
	TotalPending Money
	TotalCard    Money
	TotalSavings Money // net of deposits minus withdrawals, may be negative
}

// Accumulate folds one transaction into the totals. The caller is
// responsible for view and period filtering.
func (s *SummaryTotals) Accumulate(t Transaction) {
	switch t.Type {
	case TypeIncome:
		s.TotalIncome = s.TotalIncome.Add(t.Amount)
	case TypeExpense:
		s.TotalExpense = s.TotalExpense.Add(t.Amount)
	case TypeCardPurchase:
		s.TotalExpense = s.TotalExpense.Add(t.Amount)
		s.TotalCard = s.TotalCard.Add(t.Amount)
	case TypeSavingsDeposit:
		s.TotalSavings = s.TotalSavings.Add(t.Amount)
	case TypeSavingsWithdrawal:
		s.TotalExpense = s.TotalExpense.Add(t.Amount)
		s.TotalSavings = s.TotalSavings.Sub(t.Amount)
	}
	if t.Status == StatusPending {
		s.TotalPending = s.TotalPending.Add(t.Amount)
	}
}
