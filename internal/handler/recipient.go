package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tumapesa/internal/middleware"
	"tumapesa/internal/recipient"
)

type RecipientHandler struct {
	service *recipient.Service
	logger  Logger
}

func NewRecipientHandler(service *recipient.Service, log Logger) *RecipientHandler {
	return &RecipientHandler{service: service, logger: log}
}

// List returns the user's recipients, favorites first.
func (h *RecipientHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	recipients, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list recipients", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		respondError(w, http.StatusInternalServerError, "Failed to fetch recipients")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"recipients": recipients})
}

func (h *RecipientHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid recipient id")
		return
	}

	rec, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}
