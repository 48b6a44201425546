// Package payout dispatches mobile money payouts over the M-Pesa B2C API.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tumapesa/pkg/config"
	"tumapesa/pkg/errors"
)

// Request describes a single payout of the receive amount in KES.
type Request struct {
	TransactionID string
	Amount        decimal.Decimal
	MpesaNumber   string
	RecipientName string
}

// Handle identifies a dispatched payout awaiting settlement.
type Handle struct {
	Reference string
}

type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is the provider-side view of a dispatched payout.
type Status struct {
	State        State
	Confirmation string
}

// MpesaClient talks to the Safaricom B2C payment API.
type MpesaClient struct {
	baseURL   string
	apiKey    string
	shortCode string
	client    *http.Client
}

func NewMpesaClient(cfg config.MpesaConfig) *MpesaClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &MpesaClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		shortCode: cfg.ShortCode,
		client:    &http.Client{Timeout: timeout},
	}
}

type b2cRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	CommandID                string `json:"CommandID"`
	Amount                   string `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
}

type b2cResponse struct {
	ConversationID      string `json:"ConversationID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

// Dispatch asks M-Pesa to pay out to the recipient's number. The
// transaction id rides as the OriginatorConversationID, so a retried
// dispatch resolves to the already accepted payout instead of paying twice.
func (c *MpesaClient) Dispatch(ctx context.Context, req Request) (*Handle, error) {
	payload := b2cRequest{
		OriginatorConversationID: req.TransactionID,
		CommandID:                "BusinessPayment",
		Amount:                   req.Amount.StringFixed(2),
		PartyA:                   c.shortCode,
		PartyB:                   req.MpesaNumber,
		Remarks:                  "Transfer to " + req.RecipientName,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal b2c request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mpesa/b2c/v1/paymentrequest", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create b2c request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPayoutDispatch, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Wrap(errors.ErrPayoutDispatch, fmt.Sprintf("mpesa returned status %d", resp.StatusCode))
	}

	var b2cResp b2cResponse
	if err := json.NewDecoder(resp.Body).Decode(&b2cResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode b2c response")
	}

	if resp.StatusCode != http.StatusOK || b2cResp.ResponseCode != "0" {
		return nil, errors.Wrap(errors.ErrPayoutRejected, b2cResp.ResponseDescription)
	}

	return &Handle{Reference: b2cResp.ConversationID}, nil
}

type b2cStatusResponse struct {
	Status       string `json:"Status"`
	MpesaReceipt string `json:"MpesaReceiptNumber"`
}

// CheckStatus polls M-Pesa for the settlement state of a dispatched payout.
func (c *MpesaClient) CheckStatus(ctx context.Context, reference string) (*Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mpesa/b2c/v1/status/"+reference, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create status request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPayoutDispatch, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(errors.ErrPayoutDispatch, fmt.Sprintf("mpesa status returned %d", resp.StatusCode))
	}

	var statusResp b2cStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode status response")
	}

	switch statusResp.Status {
	case "Completed":
		return &Status{State: StateCompleted, Confirmation: statusResp.MpesaReceipt}, nil
	case "Failed", "Cancelled":
		return &Status{State: StateFailed}, nil
	default:
		return &Status{State: StatePending}, nil
	}
}
