package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tumapesa/internal/middleware"
	"tumapesa/internal/notification"
)

type NotificationHandler struct {
	service *notification.Service
	logger  Logger
}

func NewNotificationHandler(service *notification.Service, log Logger) *NotificationHandler {
	return &NotificationHandler{service: service, logger: log}
}

// List returns the user's notifications, newest first. ?unread=true filters
// to unread only.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := h.service.List(r.Context(), userID, unreadOnly)
	if err != nil {
		h.logger.Error("Failed to list notifications", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		respondError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

// MarkRead flips the read flag on one notification.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid notification id")
		return
	}

	if err := h.service.MarkRead(r.Context(), userID, id); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
