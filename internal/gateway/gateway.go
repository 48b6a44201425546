package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"tumapesa/internal/domain"
)

// CaptureRequest describes a card charge for the full transfer total
// (send amount plus fee) in the sender's currency.
type CaptureRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      domain.Currency
	CardToken     string
	Description   string
}

// CaptureResult is returned on a successful capture.
type CaptureResult struct {
	Reference string
}

// CardGateway charges and reverses card payments. Capture must be
// idempotent on CaptureRequest.TransactionID: retrying the same
// transaction never double-charges.
type CardGateway interface {
	Name() domain.Gateway
	Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
	Reverse(ctx context.Context, reference string) error
}
