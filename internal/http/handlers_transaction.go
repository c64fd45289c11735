package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fluxo/internal/core"
	"fluxo/internal/ledger"
	"fluxo/internal/services"
)

type recurrenceJSON struct {
	ChainID   string    `json:"chain_id"`
	Every     string    `json:"every"`
	AnchorDay int       `json:"anchor_day"`
	NextDue   core.Date `json:"next_due"`
}

type installmentJSON struct {
	GroupID   string `json:"group_id"`
	Number    int    `json:"number"`
	Total     int    `json:"total"`
	CardID    string `json:"card_id"`
	InvoiceID string `json:"invoice_id"`
}

type transactionJSON struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Amount      core.Money       `json:"amount"`
	Type        string           `json:"type"`
	Person      string           `json:"person"`
	Category    string           `json:"category,omitempty"`
	DueDate     core.Date        `json:"due_date"`
	Status      string           `json:"status"`
	Notes       string           `json:"notes,omitempty"`
	Recurring   *recurrenceJSON  `json:"recurring,omitempty"`
	Installment *installmentJSON `json:"installment,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	out := transactionJSON{
		ID:          t.ID,
		Description: t.Description,
		Amount:      t.Amount,
		Type:        string(t.Type),
		Person:      t.Person,
		Category:    t.Category,
		DueDate:     t.DueDate,
		Status:      string(t.Status),
		Notes:       t.Notes,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if r := t.Recurring; r != nil {
		out.Recurring = &recurrenceJSON{
			ChainID:   r.ChainID,
			Every:     string(r.Every),
			AnchorDay: r.AnchorDay,
			NextDue:   r.NextDue,
		}
	}
	if i := t.Installment; i != nil {
		out.Installment = &installmentJSON{
			GroupID:   i.GroupID,
			Number:    i.Number,
			Total:     i.Total,
			CardID:    i.CardID,
			InvoiceID: i.InvoiceID,
		}
	}
	return out
}

func toTransactionListJSON(ts []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

type createTransactionRequest struct {
	Description  string     `json:"description"`
	Amount       core.Money `json:"amount"`
	Type         string     `json:"type"`
	Person       string     `json:"person"`
	Category     string     `json:"category"`
	DueDate      core.Date  `json:"due_date"`
	Notes        string     `json:"notes"`
	Recurring    bool       `json:"recurring"`
	Installments int        `json:"installments"`
	CardID       string     `json:"card_id"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := s.ledger.Create(r.Context(), services.CreateTransactionInput{
		Description:  strings.TrimSpace(req.Description),
		Amount:       req.Amount,
		Type:         core.TransactionType(req.Type),
		Person:       strings.TrimSpace(req.Person),
		Category:     strings.TrimSpace(req.Category),
		DueDate:      req.DueDate,
		Notes:        req.Notes,
		Recurring:    req.Recurring,
		Installments: req.Installments,
		CardID:       req.CardID,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateSummaries()
	writeJSON(w, http.StatusCreated, toTransactionListJSON(created))
}

// parsePeriodQuery reads month/year query parameters, defaulting the
// missing half to the current month. Returns nil when neither is set.
func parsePeriodQuery(r *http.Request) (*core.Period, error) {
	monthStr := strings.TrimSpace(r.URL.Query().Get("month"))
	yearStr := strings.TrimSpace(r.URL.Query().Get("year"))
	if monthStr == "" && yearStr == "" {
		return nil, nil
	}

	now := time.Now()
	p := core.Period{Month: int(now.Month()), Year: now.Year()}
	if monthStr != "" {
		m, err := strconv.Atoi(monthStr)
		if err != nil {
			return nil, core.ErrInvalidMonth
		}
		p.Month = m
	}
	if yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil {
			return nil, core.ErrInvalidYear
		}
		p.Year = y
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	s.expandRecurring(r.Context())

	var f ledger.TransactionFilter
	if v := strings.TrimSpace(r.URL.Query().Get("view")); v != "" {
		view, err := core.ParseView(v)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		f.View = &view
	}
	period, err := parsePeriodQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	f.Period = period
	f.Status = core.TransactionStatus(r.URL.Query().Get("status"))
	f.Type = core.TransactionType(r.URL.Query().Get("type"))
	f.InvoiceID = r.URL.Query().Get("invoice_id")
	f.GroupID = r.URL.Query().Get("group_id")
	f.ChainID = r.URL.Query().Get("chain_id")

	ts, err := s.ledger.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionListJSON(ts))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(t))
}

type updateTransactionRequest struct {
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	Type        string     `json:"type"`
	Person      string     `json:"person"`
	Category    string     `json:"category"`
	DueDate     core.Date  `json:"due_date"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req updateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := s.ledger.Update(r.Context(), chi.URLParam(r, "id"), services.UpdateTransactionInput{
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		Type:        core.TransactionType(req.Type),
		Person:      strings.TrimSpace(req.Person),
		Category:    strings.TrimSpace(req.Category),
		DueDate:     req.DueDate,
		Status:      core.TransactionStatus(req.Status),
		Notes:       req.Notes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, toTransactionJSON(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateSummaries()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePayTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, toTransactionJSON(t))
}
