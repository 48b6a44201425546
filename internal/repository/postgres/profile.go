package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

type ProfileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	var profile domain.Profile
	query := `
		SELECT id, email, phone, COALESCE(full_name, '') AS full_name,
		       COALESCE(country, '') AS country, kyc_status, created_at, updated_at
		FROM profiles WHERE id = $1
	`

	err := r.db.GetContext(ctx, &profile, query, userID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrProfileNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get profile")
	}

	return &profile, nil
}
