package services

import (
	"context"
	"fmt"

	"fluxo/internal/core"
	"fluxo/internal/ledger"
)

// SummaryService folds one view's transactions for one month into
// aggregate totals.
type SummaryService struct {
	store ledger.Store
}

func NewSummaryService(store ledger.Store) *SummaryService {
	return &SummaryService{store: store}
}

func (s *SummaryService) Monthly(ctx context.Context, view core.View, p core.Period) (core.SummaryTotals, error) {
	if err := p.Validate(); err != nil {
		return core.SummaryTotals{}, err
	}
	ts, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{View: &view, Period: &p})
	if err != nil {
		return core.SummaryTotals{}, fmt.Errorf("list transactions: %w", err)
	}
	var totals core.SummaryTotals
	for _, t := range ts {
		totals.Accumulate(t)
	}
	return totals, nil
}
