package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tumapesa/internal/domain"
	"tumapesa/pkg/config"
	"tumapesa/pkg/errors"
)

// StripeGateway charges cards through the Stripe Charges API.
type StripeGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewStripeGateway(cfg config.GatewayConfig) *StripeGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &StripeGateway{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *StripeGateway) Name() domain.Gateway {
	return domain.GatewayStripe
}

type stripeCharge struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Capture charges the card for the full transfer total. The transaction id
// is sent as the Idempotency-Key, so retries of the same transfer collapse
// into a single charge on Stripe's side.
func (g *StripeGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	form := url.Values{}
	// Stripe expects the amount in the smallest currency unit.
	form.Set("amount", req.Amount.Shift(2).Truncate(0).String())
	form.Set("currency", strings.ToLower(string(req.Currency)))
	form.Set("source", req.CardToken)
	form.Set("description", req.Description)
	form.Set("metadata[transaction_id]", req.TransactionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/charges", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stripe request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", req.TransactionID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCaptureTransient, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var charge stripeCharge
		if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
			return nil, errors.Wrap(err, "failed to decode stripe response")
		}
		if charge.Status != "succeeded" {
			return nil, errors.Wrap(errors.ErrCaptureDeclined, fmt.Sprintf("charge status %s", charge.Status))
		}
		return &CaptureResult{Reference: charge.ID}, nil

	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		var stripeErr stripeError
		_ = json.NewDecoder(resp.Body).Decode(&stripeErr)
		return nil, errors.Wrap(errors.ErrCaptureDeclined, stripeErr.Error.Message)

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, errors.Wrap(errors.ErrCaptureTransient, fmt.Sprintf("stripe returned status %d", resp.StatusCode))

	default:
		return nil, fmt.Errorf("stripe returned status %d", resp.StatusCode)
	}
}

// Reverse refunds a previously captured charge in full.
func (g *StripeGateway) Reverse(ctx context.Context, reference string) error {
	form := url.Values{}
	form.Set("charge", reference)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/refunds", strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to create stripe refund request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", "refund-"+reference)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "failed to reach stripe")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stripe refund returned status %d", resp.StatusCode)
	}
	return nil
}
