// Package memory provides concurrency-safe in-memory stores useful for unit
// tests and local development without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

type TransactionStore struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		transactions: make(map[uuid.UUID]*domain.Transaction),
	}
}

func (s *TransactionStore) Create(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return errors.ErrTransactionAlreadyExists
	}

	clone := *tx
	s.transactions[tx.ID] = &clone
	return nil
}

// UpdateStatus applies a compare-and-set transition: the write happens only
// if the stored status still equals from. Matches the database repository's
// guarded UPDATE semantics.
func (s *TransactionStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.TransactionStatus, update domain.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.CanTransition(from, to) {
		return errors.ErrInvalidTransition
	}

	tx, exists := s.transactions[id]
	if !exists {
		return errors.ErrTransactionNotFound
	}
	if tx.Status != from {
		return errors.ErrStaleStatus
	}

	tx.Status = to
	tx.StatusReason = update.Reason
	if update.PaymentReference != nil {
		tx.PaymentReference = update.PaymentReference
	}
	if update.PayoutReference != nil {
		tx.PayoutReference = update.PayoutReference
	}
	if update.SettlementReference != nil {
		tx.SettlementReference = update.SettlementReference
	}
	if update.CompletedAt != nil {
		tx.CompletedAt = update.CompletedAt
	}
	tx.UpdatedAt = time.Now()
	return nil
}

func (s *TransactionStore) Get(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactions[id]
	if !exists {
		return nil, errors.ErrTransactionNotFound
	}

	clone := *tx
	return &clone, nil
}

func (s *TransactionStore) GetForUser(ctx context.Context, userID, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, errors.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *TransactionStore) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txs []domain.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			txs = append(txs, *tx)
		}
	}

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})

	if offset >= len(txs) {
		return nil, nil
	}
	txs = txs[offset:]
	if limit > 0 && limit < len(txs) {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *TransactionStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			count++
		}
	}
	return count, nil
}
