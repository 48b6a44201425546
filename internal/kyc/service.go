// Package kyc gates transfers on the sender's verification status.
package kyc

import (
	"context"

	"github.com/google/uuid"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RequireVerified returns the sender's profile if their identity is approved.
// Any other verification state blocks the transfer.
func (s *Service) RequireVerified(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.KycStatus != domain.KycStatusApproved {
		return nil, errors.ErrKycRequired
	}
	return profile, nil
}

// Status reports the sender's current verification state without gating.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (domain.KycStatus, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	return profile.KycStatus, nil
}

// Repository defines the profile storage dependency.
type Repository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}
