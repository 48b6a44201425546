package quote

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

func usdRate(rate, feePct string) *domain.ExchangeRate {
	return &domain.ExchangeRate{
		FromCurrency:  domain.USD,
		ToCurrency:    domain.KES,
		Rate:          decimal.RequireFromString(rate),
		FeePercentage: decimal.RequireFromString(feePct),
	}
}

func TestQuote_100USD(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(10000))

	q, err := calc.Quote(decimal.NewFromInt(100), usdRate("130", "2.5"))
	require.NoError(t, err)

	assert.Equal(t, "13000", q.ReceiveAmount.String())
	assert.Equal(t, "2.5", q.FeeAmount.String())
	assert.Equal(t, "102.5", q.TotalAmount.String())
	assert.True(t, q.ReceiveAmount.Equal(decimal.RequireFromString("13000.00")))
	assert.True(t, q.FeeAmount.Equal(decimal.RequireFromString("2.50")))
	assert.True(t, q.TotalAmount.Equal(decimal.RequireFromString("102.50")))
	assert.Equal(t, domain.KES, q.ToCurrency)
}

func TestQuote_TotalIsSendPlusFee(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(10000))

	amounts := []string{"0.01", "1", "33.33", "250.75", "9999.99"}
	for _, a := range amounts {
		send := decimal.RequireFromString(a)
		q, err := calc.Quote(send, usdRate("129.4321", "1.75"))
		require.NoError(t, err)

		assert.True(t, q.TotalAmount.Equal(q.SendAmount.Add(q.FeeAmount)),
			"total mismatch for %s", a)
		expectedFee := send.Mul(decimal.RequireFromString("1.75")).Div(decimal.NewFromInt(100)).Round(2)
		assert.True(t, q.FeeAmount.Equal(expectedFee), "fee mismatch for %s", a)
	}
}

func TestQuote_RoundsHalfUp(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(10000))

	// 10.10 * 2.5% = 0.2525 -> rounds to 0.25; 10.30 * 2.5% = 0.2575 -> 0.26
	q, err := calc.Quote(decimal.RequireFromString("10.10"), usdRate("130", "2.5"))
	require.NoError(t, err)
	assert.True(t, q.FeeAmount.Equal(decimal.RequireFromString("0.25")))

	q, err = calc.Quote(decimal.RequireFromString("10.30"), usdRate("130", "2.5"))
	require.NoError(t, err)
	assert.True(t, q.FeeAmount.Equal(decimal.RequireFromString("0.26")))
}

func TestQuote_RejectsNonPositiveAmounts(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(10000))

	_, err := calc.Quote(decimal.Zero, usdRate("130", "2.5"))
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	_, err = calc.Quote(decimal.NewFromInt(-5), usdRate("130", "2.5"))
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)
}

func TestQuote_RejectsAmountAboveCeiling(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(500))

	_, err := calc.Quote(decimal.RequireFromString("500.01"), usdRate("130", "2.5"))
	assert.ErrorIs(t, err, errors.ErrAmountExceedsLimit)

	// Exactly at the ceiling is allowed.
	_, err = calc.Quote(decimal.NewFromInt(500), usdRate("130", "2.5"))
	assert.NoError(t, err)
}

func TestQuote_SnapshotsRateAndFee(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(10000))

	rate := usdRate("130", "2.5")
	q, err := calc.Quote(decimal.NewFromInt(50), rate)
	require.NoError(t, err)

	// Mutating the source row after quoting must not affect the snapshot.
	rate.Rate = decimal.NewFromInt(99)
	rate.FeePercentage = decimal.NewFromInt(9)

	assert.True(t, q.Rate.Equal(decimal.NewFromInt(130)))
	assert.True(t, q.FeePercentage.Equal(decimal.RequireFromString("2.5")))
}
