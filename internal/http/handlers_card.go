package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fluxo/internal/core"
	"fluxo/internal/services"
)

type cardJSON struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ClosingDay int       `json:"closing_day"`
	DueDay     int       `json:"due_day"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toCardJSON(c core.Card) cardJSON {
	return cardJSON{
		ID:         c.ID,
		Name:       c.Name,
		ClosingDay: c.ClosingDay,
		DueDay:     c.DueDay,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

type cardRequest struct {
	Name       string `json:"name"`
	ClosingDay int    `json:"closing_day"`
	DueDay     int    `json:"due_day"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.cards.Create(r.Context(), services.CardInput{
		Name:       strings.TrimSpace(req.Name),
		ClosingDay: req.ClosingDay,
		DueDay:     req.DueDay,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardJSON(c))
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.cards.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]cardJSON, 0, len(cards))
	for _, c := range cards {
		out = append(out, toCardJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	c, err := s.cards.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardJSON(c))
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.cards.Update(r.Context(), chi.URLParam(r, "id"), services.CardInput{
		Name:       strings.TrimSpace(req.Name),
		ClosingDay: req.ClosingDay,
		DueDay:     req.DueDay,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardJSON(c))
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.cards.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
