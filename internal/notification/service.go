// Package notification records user-facing messages for transfer events.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tumapesa/internal/domain"
	"tumapesa/pkg/logger"
)

// Event names a transfer lifecycle moment worth telling the sender about.
type Event string

const (
	EventInitiated Event = "TRANSFER_INITIATED"
	EventDelivered Event = "TRANSFER_DELIVERED"
	EventFailed    Event = "TRANSFER_FAILED"
	EventReversed  Event = "TRANSFER_REVERSED"
)

type Service struct {
	repo   Repository
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, logger: log}
}

// NotifyTransfer renders and stores one message for a transfer event.
// Callers fire it in a goroutine; a failed write never fails the transfer.
func (s *Service) NotifyTransfer(ctx context.Context, tx *domain.Transaction, recipientName string, event Event) {
	var title, message string

	switch event {
	case EventInitiated:
		title = "Transfer started"
		message = fmt.Sprintf("Your transfer of %s %s to %s is being processed.",
			tx.SendAmount.StringFixed(2), tx.SendCurrency, recipientName)

	case EventDelivered:
		title = "Money delivered"
		message = fmt.Sprintf("%s received KES %s.", recipientName, tx.ReceiveAmount.StringFixed(2))

	case EventFailed:
		title = "Transfer failed"
		message = fmt.Sprintf("Your transfer of %s %s to %s could not be completed.",
			tx.SendAmount.StringFixed(2), tx.SendCurrency, recipientName)
		if tx.StatusReason != "" {
			message = fmt.Sprintf("%s Reason: %s.", message, tx.StatusReason)
		}

	case EventReversed:
		title = "Payment refunded"
		message = fmt.Sprintf("Your card charge of %s %s has been refunded in full.",
			tx.TotalAmount.StringFixed(2), tx.SendCurrency)

	default:
		s.logger.Warn("Unknown notification event", map[string]interface{}{
			"event":          string(event),
			"transaction_id": tx.ID,
		})
		return
	}

	txID := tx.ID
	n := &domain.Notification{
		ID:            uuid.New(),
		UserID:        tx.UserID,
		TransactionID: &txID,
		Title:         title,
		Message:       message,
		Type:          domain.NotificationTypeTransaction,
		CreatedAt:     time.Now(),
	}

	// Store with a fresh deadline so the write survives request cancellation.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.CreateNotification(storeCtx, n); err != nil {
		s.logger.Error("Failed to store notification", map[string]interface{}{
			"error":          err.Error(),
			"transaction_id": tx.ID,
			"event":          string(event),
		})
		return
	}

	s.logger.Info("Notification stored", map[string]interface{}{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"event":           string(event),
	})
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.Notification, error) {
	return s.repo.ListNotifications(ctx, userID, unreadOnly)
}

// MarkRead flips the read flag on one of the user's notifications.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.repo.MarkNotificationRead(ctx, userID, notificationID)
}

// Repository defines the notification storage dependency.
type Repository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) error
}
