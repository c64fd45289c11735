package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fluxo/internal/core"
	"fluxo/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses:
// not found -> 404, validation -> 422, invalid state and conflict -> 409,
// anything else -> 500 with the detail kept out of the response.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrValidation):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).
			ErrorContext(r.Context(), "Request failed",
				log.FieldError, err.Error(),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}
