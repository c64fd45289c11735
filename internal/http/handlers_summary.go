package http

import (
	"net/http"
	"strings"
	"time"

	"fluxo/internal/core"
	"fluxo/internal/log"
)

type summaryJSON struct {
	View         string     `json:"view"`
	Month        int        `json:"month"`
	Year         int        `json:"year"`
	TotalIncome  core.Money `json:"total_income"`
	TotalExpense core.Money `json:"total_expense"`
	TotalPending core.Money `json:"total_pending"`
	TotalCard    core.Money `json:"total_card"`
	TotalSavings core.Money `json:"total_savings"`
	Balance      core.Money `json:"balance"`
}

// handleSummary aggregates one view's month. Results are cached until
// the next write.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	view, err := core.ParseView(strings.TrimSpace(r.URL.Query().Get("view")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	period, err := parsePeriodQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if period == nil {
		now := time.Now()
		period = &core.Period{Month: int(now.Month()), Year: now.Year()}
	}

	s.expandRecurring(r.Context())

	key := view.String() + "|" + period.String()
	if cached, found := s.summaryCache.Get(key); found {
		log.FromContext(r.Context()).WithComponent(log.ComponentCache).
			DebugContext(r.Context(), "Summary cache hit",
				log.FieldMonth, period.Month, log.FieldYear, period.Year)
		writeJSON(w, http.StatusOK, cached)
		return
	}

	totals, err := s.summaries.Monthly(r.Context(), view, *period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := summaryJSON{
		View:         view.String(),
		Month:        period.Month,
		Year:         period.Year,
		TotalIncome:  totals.TotalIncome,
		TotalExpense: totals.TotalExpense,
		TotalPending: totals.TotalPending,
		TotalCard:    totals.TotalCard,
		TotalSavings: totals.TotalSavings,
		Balance:      totals.TotalIncome.Sub(totals.TotalExpense),
	}
	s.summaryCache.SetDefault(key, out)
	writeJSON(w, http.StatusOK, out)
}
