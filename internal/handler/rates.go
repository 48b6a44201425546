package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"tumapesa/internal/domain"
	"tumapesa/internal/quote"
	"tumapesa/internal/rates"
)

type RatesHandler struct {
	service    *rates.Service
	calculator *quote.Calculator
	logger     Logger
}

func NewRatesHandler(service *rates.Service, calculator *quote.Calculator, log Logger) *RatesHandler {
	return &RatesHandler{service: service, calculator: calculator, logger: log}
}

// Get returns the current corridor rate and, when ?amount= is present, a
// non-binding quote preview for the send screen.
func (h *RatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	currency := domain.Currency(strings.ToUpper(mux.Vars(r)["currency"]))

	rate, err := h.service.GetRate(r.Context(), currency)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"from_currency":  rate.FromCurrency,
		"to_currency":    rate.ToCurrency,
		"rate":           rate.Rate,
		"fee_percentage": rate.FeePercentage,
		"updated_at":     rate.UpdatedAt,
	}

	if v := r.URL.Query().Get("amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid amount")
			return
		}
		q, err := h.calculator.Quote(amount, rate)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		resp["quote"] = q
	}

	respondJSON(w, http.StatusOK, resp)
}
