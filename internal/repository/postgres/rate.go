package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

type RateRepository struct {
	db *sqlx.DB
}

func NewRateRepository(db *sqlx.DB) *RateRepository {
	return &RateRepository{db: db}
}

// GetRate returns the single maintained rate row for a corridor. Rate and fee
// percentage come from one row, so callers never observe a torn pair.
func (r *RateRepository) GetRate(ctx context.Context, from, to domain.Currency) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	query := `
		SELECT id, from_currency, to_currency, rate, fee_percentage, updated_at
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2
	`

	err := r.db.GetContext(ctx, &rate, query, from, to)
	if err == sql.ErrNoRows {
		return nil, errors.ErrRateUnavailable
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get exchange rate")
	}

	return &rate, nil
}

func (r *RateRepository) ListRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	var rates []domain.ExchangeRate
	query := `
		SELECT id, from_currency, to_currency, rate, fee_percentage, updated_at
		FROM exchange_rates
		ORDER BY from_currency
	`

	err := r.db.SelectContext(ctx, &rates, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list exchange rates")
	}

	return rates, nil
}
