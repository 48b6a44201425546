package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"tumapesa/internal/transfer"
)

// WebhookHandler receives asynchronous settlement callbacks from the payout
// provider. It authenticates with a shared secret header, not a user JWT.
type WebhookHandler struct {
	service *transfer.Service
	secret  string
	logger  Logger
}

func NewWebhookHandler(service *transfer.Service, secret string, log Logger) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret, logger: log}
}

type payoutResultPayload struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResultCode               int    `json:"ResultCode"`
	ResultDesc               string `json:"ResultDesc"`
	MpesaReceiptNumber       string `json:"MpesaReceiptNumber"`
}

// ConfirmPayout applies a settlement result. Duplicate and late deliveries
// are acknowledged with 200 so the provider stops retrying.
func (h *WebhookHandler) ConfirmPayout(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Secret")), []byte(h.secret)) != 1 {
		respondError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	var payload payoutResultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	txID, err := uuid.Parse(payload.OriginatorConversationID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}

	succeeded := payload.ResultCode == 0
	if err := h.service.ConfirmSettlement(r.Context(), txID, payload.MpesaReceiptNumber, succeeded); err != nil {
		h.logger.Error("Settlement webhook failed", map[string]interface{}{
			"error":          err.Error(),
			"transaction_id": txID,
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
