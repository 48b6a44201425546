package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

type RecipientRepository struct {
	db *sqlx.DB
}

func NewRecipientRepository(db *sqlx.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) GetRecipient(ctx context.Context, userID, recipientID uuid.UUID) (*domain.Recipient, error) {
	var recipient domain.Recipient
	query := `
		SELECT id, user_id, full_name, phone_number, mpesa_number,
		       country, is_favorite, created_at, updated_at
		FROM recipients WHERE id = $1 AND user_id = $2
	`

	err := r.db.GetContext(ctx, &recipient, query, recipientID, userID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrRecipientNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recipient")
	}

	return &recipient, nil
}

func (r *RecipientRepository) ListRecipients(ctx context.Context, userID uuid.UUID) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	query := `
		SELECT id, user_id, full_name, phone_number, mpesa_number,
		       country, is_favorite, created_at, updated_at
		FROM recipients
		WHERE user_id = $1
		ORDER BY is_favorite DESC, full_name ASC
	`

	err := r.db.SelectContext(ctx, &recipients, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recipients")
	}

	return recipients, nil
}
