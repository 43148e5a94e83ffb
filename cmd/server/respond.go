package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Simplici0/dtf.works/internal/order"
	"github.com/Simplici0/dtf.works/internal/pricing"
	"github.com/Simplici0/dtf.works/internal/wizard"
)

type errorResponse struct {
	Error  string             `json:"error"`
	Status string             `json:"status,omitempty"`
	Fields []order.FieldError `json:"fields,omitempty"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to write response.", "err", err)
	}
}

// writeError sends msg to the client; cause, when set, is only logged.
func (s *server) writeError(w http.ResponseWriter, status int, msg string, cause error) {
	if cause != nil {
		s.log.Error("Request failed.", "status", status, "msg", msg, "err", cause)
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeWizardError maps errors from a wizard session to HTTP statuses.
func (s *server) writeWizardError(w http.ResponseWriter, err error) {
	var invalid *order.ValidationError
	switch {
	case errors.As(err, &invalid):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order details", Fields: invalid.Fields})
	case errors.Is(err, pricing.ErrNotReady):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Status: "not_ready"})
	case errors.Is(err, pricing.ErrUnknownSize):
		s.writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, wizard.ErrInvalidTransition), errors.Is(err, wizard.ErrStaleBatch):
		s.writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
