package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fluxo/internal/core"
	"fluxo/internal/ledger"
)

type invoiceJSON struct {
	ID          string     `json:"id"`
	CardID      string     `json:"card_id"`
	Month       int        `json:"month"`
	Year        int        `json:"year"`
	ClosingDate core.Date  `json:"closing_date"`
	DueDate     core.Date  `json:"due_date"`
	TotalAmount core.Money `json:"total_amount"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toInvoiceJSON(i core.Invoice) invoiceJSON {
	return invoiceJSON{
		ID:          i.ID,
		CardID:      i.CardID,
		Month:       i.Month,
		Year:        i.Year,
		ClosingDate: i.ClosingDate,
		DueDate:     i.DueDate,
		TotalAmount: i.TotalAmount,
		Status:      string(i.Status),
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

type createInvoiceRequest struct {
	CardID string `json:"card_id"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := s.invoices.Create(r.Context(), req.CardID, core.Period{Month: req.Month, Year: req.Year})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceJSON(inv))
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	var f ledger.InvoiceFilter
	f.CardID = r.URL.Query().Get("card_id")
	f.Status = core.InvoiceStatus(r.URL.Query().Get("status"))
	period, err := parsePeriodQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	f.Period = period

	invs, err := s.invoices.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]invoiceJSON, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvoiceJSON(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceJSON(inv))
}

func (s *Server) handleCloseInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoices.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, toInvoiceJSON(inv))
}

func (s *Server) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoices.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceJSON(inv))
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.invoices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
