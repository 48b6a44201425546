package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tumapesa/internal/domain"
	"tumapesa/pkg/config"
	"tumapesa/pkg/errors"
)

// FlutterwaveGateway charges cards through the Flutterwave v3 API.
type FlutterwaveGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewFlutterwaveGateway(cfg config.GatewayConfig) *FlutterwaveGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &FlutterwaveGateway{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *FlutterwaveGateway) Name() domain.Gateway {
	return domain.GatewayFlutterwave
}

type flwChargeRequest struct {
	TxRef     string `json:"tx_ref"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	CardToken string `json:"token"`
	Narration string `json:"narration"`
}

type flwChargeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		FlwRef string `json:"flw_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

// Capture charges the card via a tokenized charge. Flutterwave deduplicates
// on tx_ref, which carries the transaction id.
func (g *FlutterwaveGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	payload := flwChargeRequest{
		TxRef:     req.TransactionID,
		Amount:    req.Amount.StringFixed(2),
		Currency:  string(req.Currency),
		CardToken: req.CardToken,
		Narration: req.Description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal flutterwave request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v3/tokenized-charges", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create flutterwave request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.TransactionID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCaptureTransient, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Wrap(errors.ErrCaptureTransient, fmt.Sprintf("flutterwave returned status %d", resp.StatusCode))
	}

	var chargeResp flwChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&chargeResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode flutterwave response")
	}

	if resp.StatusCode != http.StatusOK || chargeResp.Status != "success" || chargeResp.Data.Status != "successful" {
		return nil, errors.Wrap(errors.ErrCaptureDeclined, chargeResp.Message)
	}

	return &CaptureResult{Reference: chargeResp.Data.FlwRef}, nil
}

// Reverse refunds a captured charge by its flw_ref.
func (g *FlutterwaveGateway) Reverse(ctx context.Context, reference string) error {
	body, err := json.Marshal(map[string]string{"flw_ref": reference})
	if err != nil {
		return errors.Wrap(err, "failed to marshal flutterwave refund request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v3/refunds", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create flutterwave refund request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "failed to reach flutterwave")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flutterwave refund returned status %d", resp.StatusCode)
	}
	return nil
}
