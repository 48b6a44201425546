package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
        INSERT INTO transactions (
            id, user_id, recipient_id, send_amount, send_currency,
            receive_amount, exchange_rate, fee_percentage, fee_amount, total_amount,
            payment_gateway, status, status_reason, payment_reference,
            payout_reference, settlement_reference, created_at, updated_at, completed_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19
        )
    `

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.RecipientID, tx.SendAmount, tx.SendCurrency,
		tx.ReceiveAmount, tx.ExchangeRate, tx.FeePercentage, tx.FeeAmount, tx.TotalAmount,
		tx.PaymentGateway, tx.Status, tx.StatusReason, tx.PaymentReference,
		tx.PayoutReference, tx.SettlementReference, tx.CreatedAt, tx.UpdatedAt, tx.CompletedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return errors.ErrTransactionAlreadyExists
		}
		return errors.Wrap(err, "failed to create transaction")
	}

	return nil
}

// UpdateStatus moves one transaction from an expected status to the next one,
// atomically. The WHERE clause on the current status is what serializes
// concurrent workflow steps: whoever matches first wins, everyone else gets
// ErrStaleStatus and must re-read.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TransactionStatus, update domain.StatusUpdate) error {
	if !domain.CanTransition(from, to) {
		return errors.ErrInvalidTransition
	}

	query := `
		UPDATE transactions SET
			status = $3,
			status_reason = $4,
			payment_reference = COALESCE($5, payment_reference),
			payout_reference = COALESCE($6, payout_reference),
			settlement_reference = COALESCE($7, settlement_reference),
			completed_at = COALESCE($8, completed_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		id, from, to,
		update.Reason, update.PaymentReference, update.PayoutReference,
		update.SettlementReference, update.CompletedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update transaction status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if rows == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return errors.ErrStaleStatus
	}

	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `
		SELECT
			id, user_id, recipient_id, send_amount, send_currency,
			receive_amount, exchange_rate, fee_percentage, fee_amount, total_amount,
			payment_gateway, status, COALESCE(status_reason, '') AS status_reason,
			payment_reference, payout_reference, settlement_reference, created_at, updated_at, completed_at
		FROM transactions WHERE id = $1
	`

	err := r.db.GetContext(ctx, &tx, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find transaction")
	}

	return &tx, nil
}

func (r *TransactionRepository) GetForUser(ctx context.Context, userID, id uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `
		SELECT
			id, user_id, recipient_id, send_amount, send_currency,
			receive_amount, exchange_rate, fee_percentage, fee_amount, total_amount,
			payment_gateway, status, COALESCE(status_reason, '') AS status_reason,
			payment_reference, payout_reference, settlement_reference, created_at, updated_at, completed_at
		FROM transactions WHERE id = $1 AND user_id = $2
	`

	err := r.db.GetContext(ctx, &tx, query, id, userID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find transaction")
	}

	return &tx, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	query := `
		SELECT
			id, user_id, recipient_id, send_amount, send_currency,
			receive_amount, exchange_rate, fee_percentage, fee_amount, total_amount,
			payment_gateway, status, COALESCE(status_reason, '') AS status_reason,
			payment_reference, payout_reference, settlement_reference, created_at, updated_at, completed_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &txs, query, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}

	return txs, nil
}

func (r *TransactionRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM transactions WHERE user_id = $1`
	err := r.db.GetContext(ctx, &total, query, userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count transactions")
	}
	return total, nil
}

// FindStuck returns non-terminal transactions whose last update is older than
// the given interval. The scheduler sweeps these after a crash so no transfer
// stays in flight forever.
func (r *TransactionRepository) FindStuck(ctx context.Context, olderThanSeconds, limit int) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	query := `
		SELECT
			id, user_id, recipient_id, send_amount, send_currency,
			receive_amount, exchange_rate, fee_percentage, fee_amount, total_amount,
			payment_gateway, status, COALESCE(status_reason, '') AS status_reason,
			payment_reference, payout_reference, settlement_reference, created_at, updated_at, completed_at
		FROM transactions
		WHERE status NOT IN ('delivered', 'failed')
		  AND updated_at < NOW() - ($1 || ' seconds')::INTERVAL
		ORDER BY updated_at ASC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &txs, query, olderThanSeconds, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find stuck transactions")
	}

	return txs, nil
}
