// Package quote computes transfer amounts from a rate snapshot. Pure
// arithmetic, no I/O.
package quote

import (
	"github.com/shopspring/decimal"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

// Calculator turns a send amount plus a rate snapshot into a full Quote.
type Calculator struct {
	maxSendAmount decimal.Decimal
}

// NewCalculator constructs a Calculator with a per-transaction ceiling.
func NewCalculator(maxSendAmount decimal.Decimal) *Calculator {
	return &Calculator{maxSendAmount: maxSendAmount}
}

var oneHundred = decimal.NewFromInt(100)

// Quote computes receive, fee, and total amounts. All amounts are rounded
// half-up to 2 decimal places. Fails with ErrInvalidAmount for non-positive
// amounts and ErrAmountExceedsLimit above the configured ceiling.
func (c *Calculator) Quote(sendAmount decimal.Decimal, rate *domain.ExchangeRate) (*domain.Quote, error) {
	if sendAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}
	if sendAmount.GreaterThan(c.maxSendAmount) {
		return nil, errors.ErrAmountExceedsLimit
	}

	feeAmount := sendAmount.Mul(rate.FeePercentage).Div(oneHundred).Round(2)

	return &domain.Quote{
		FromCurrency:  rate.FromCurrency,
		ToCurrency:    rate.ToCurrency,
		Rate:          rate.Rate,
		FeePercentage: rate.FeePercentage,
		SendAmount:    sendAmount.Round(2),
		ReceiveAmount: sendAmount.Mul(rate.Rate).Round(2),
		FeeAmount:     feeAmount,
		TotalAmount:   sendAmount.Round(2).Add(feeAmount),
	}, nil
}
