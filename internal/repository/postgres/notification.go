package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	query := `
        INSERT INTO notifications (id, user_id, transaction_id, title, message, type, is_read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.TransactionID, n.Title, n.Message, n.Type, n.IsRead, n.CreatedAt,
	)
	return errors.Wrap(err, "failed to create notification")
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.Notification, error) {
	var notifications []domain.Notification
	query := `
		SELECT id, user_id, transaction_id, title, message, type, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = false OR is_read = false)
		ORDER BY created_at DESC
		LIMIT 100
	`

	err := r.db.SelectContext(ctx, &notifications, query, userID, unreadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}

	return notifications, nil
}

func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	query := `UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to mark notification read")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if rows == 0 {
		return errors.ErrNotificationNotFound
	}

	return nil
}
