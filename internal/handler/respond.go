// Package handler exposes the HTTP surface of the transfer engine.
package handler

import (
	"encoding/json"
	"net/http"

	"tumapesa/pkg/errors"
)

// Logger is the narrow logging dependency handlers need.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":  "Validation failed",
		"fields": errs,
	})
}

// respondServiceError maps sentinel errors to HTTP statuses. Anything
// unmapped is a 500 with a generic body.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidAmount),
		errors.Is(err, errors.ErrAmountExceedsLimit),
		errors.Is(err, errors.ErrInvalidCurrency),
		errors.Is(err, errors.ErrUnsupportedGateway):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrKycRequired):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errors.ErrRecipientNotFound),
		errors.Is(err, errors.ErrTransactionNotFound),
		errors.Is(err, errors.ErrProfileNotFound),
		errors.Is(err, errors.ErrNotificationNotFound),
		errors.Is(err, errors.ErrRateUnavailable):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errors.ErrDuplicateRequest),
		errors.Is(err, errors.ErrTransactionAlreadyExists):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
