// Package recipient serves the sender's payout address book.
package recipient

import (
	"context"

	"github.com/google/uuid"

	"tumapesa/internal/domain"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns one recipient, scoped to the owning user so one sender can
// never pay out to another sender's address book.
func (s *Service) Get(ctx context.Context, userID, recipientID uuid.UUID) (*domain.Recipient, error) {
	return s.repo.GetRecipient(ctx, userID, recipientID)
}

// List returns the user's recipients, favorites first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.Recipient, error) {
	return s.repo.ListRecipients(ctx, userID)
}

// Repository defines the recipient storage dependency.
type Repository interface {
	GetRecipient(ctx context.Context, userID, recipientID uuid.UUID) (*domain.Recipient, error)
	ListRecipients(ctx context.Context, userID uuid.UUID) ([]domain.Recipient, error)
}
