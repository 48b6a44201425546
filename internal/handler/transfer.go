package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"tumapesa/internal/domain"
	"tumapesa/internal/middleware"
	"tumapesa/internal/transfer"
	"tumapesa/pkg/validator"
)

type TransferHandler struct {
	service   *transfer.Service
	validator *validator.Validator
	logger    Logger
}

func NewTransferHandler(service *transfer.Service, val *validator.Validator, log Logger) *TransferHandler {
	return &TransferHandler{service: service, validator: val, logger: log}
}

type initiateTransferRequest struct {
	RecipientID  string          `json:"recipient_id" validate:"required,uuid4"`
	SendAmount   decimal.Decimal `json:"send_amount" validate:"required,positive_decimal"`
	SendCurrency string          `json:"send_currency" validate:"required,send_currency"`
	Gateway      string          `json:"payment_gateway" validate:"required,oneof=stripe flutterwave"`
	CardToken    string          `json:"card_token" validate:"required"`
}

// Initiate accepts a send-money request and returns 202 with the pending
// transaction. The outcome arrives asynchronously via status polls.
func (h *TransferHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req initiateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid recipient id")
		return
	}

	tx, err := h.service.Initiate(r.Context(), userID, transfer.InitiateRequest{
		RecipientID:  recipientID,
		SendAmount:   req.SendAmount,
		SendCurrency: domain.Currency(req.SendCurrency),
		Gateway:      domain.Gateway(req.Gateway),
		CardToken:    req.CardToken,
	})
	if err != nil {
		h.logger.Error("Transfer initiation failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, tx)
}

// Get returns one of the user's transactions.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	tx, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

// List returns the user's transfer history, newest first.
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	txs, total, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to fetch transfer history", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		respondError(w, http.StatusInternalServerError, "Failed to fetch transfers")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}
