package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

func newTransaction(status domain.TransactionStatus) *domain.Transaction {
	return &domain.Transaction{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		RecipientID:  uuid.New(),
		SendAmount:   decimal.RequireFromString("100.00"),
		SendCurrency: domain.USD,
		Status:       status,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestCreate_DuplicateRejected(t *testing.T) {
	store := NewTransactionStore()
	tx := newTransaction(domain.TransactionStatusPending)

	require.NoError(t, store.Create(context.Background(), tx))
	err := store.Create(context.Background(), tx)
	assert.ErrorIs(t, err, errors.ErrTransactionAlreadyExists)
}

func TestUpdateStatus_CompareAndSet(t *testing.T) {
	store := NewTransactionStore()
	tx := newTransaction(domain.TransactionStatusPending)
	require.NoError(t, store.Create(context.Background(), tx))

	err := store.UpdateStatus(context.Background(), tx.ID,
		domain.TransactionStatusPending, domain.TransactionStatusCapturing, domain.StatusUpdate{})
	require.NoError(t, err)

	// Expected status no longer matches.
	err = store.UpdateStatus(context.Background(), tx.ID,
		domain.TransactionStatusPending, domain.TransactionStatusFailed, domain.StatusUpdate{})
	assert.ErrorIs(t, err, errors.ErrStaleStatus)

	got, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCapturing, got.Status)
}

func TestUpdateStatus_RejectsIllegalEdge(t *testing.T) {
	store := NewTransactionStore()
	tx := newTransaction(domain.TransactionStatusPending)
	require.NoError(t, store.Create(context.Background(), tx))

	err := store.UpdateStatus(context.Background(), tx.ID,
		domain.TransactionStatusPending, domain.TransactionStatusDelivered, domain.StatusUpdate{})
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)

	got, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, got.Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	store := NewTransactionStore()
	err := store.UpdateStatus(context.Background(), uuid.New(),
		domain.TransactionStatusPending, domain.TransactionStatusCapturing, domain.StatusUpdate{})
	assert.ErrorIs(t, err, errors.ErrTransactionNotFound)
}

func TestUpdateStatus_ConcurrentWinnersExactlyOne(t *testing.T) {
	store := NewTransactionStore()
	tx := newTransaction(domain.TransactionStatusPayingOut)
	require.NoError(t, store.Create(context.Background(), tx))

	const workers = 16
	var wins, stale int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.UpdateStatus(context.Background(), tx.ID,
				domain.TransactionStatusPayingOut, domain.TransactionStatusDelivered, domain.StatusUpdate{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if err == errors.ErrStaleStatus {
				stale++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, stale)
}

func TestGet_ReturnsCopy(t *testing.T) {
	store := NewTransactionStore()
	tx := newTransaction(domain.TransactionStatusPending)
	require.NoError(t, store.Create(context.Background(), tx))

	got, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	got.Status = domain.TransactionStatusFailed

	again, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, again.Status)
}

func TestGetForUser_ScopesByOwner(t *testing.T) {
	store := NewTransactionStore()
	tx := newTransaction(domain.TransactionStatusPending)
	require.NoError(t, store.Create(context.Background(), tx))

	_, err := store.GetForUser(context.Background(), uuid.New(), tx.ID)
	assert.ErrorIs(t, err, errors.ErrTransactionNotFound)

	got, err := store.GetForUser(context.Background(), tx.UserID, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
}

func TestListByUser_NewestFirst(t *testing.T) {
	store := NewTransactionStore()
	userID := uuid.New()

	older := newTransaction(domain.TransactionStatusPending)
	older.UserID = userID
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newTransaction(domain.TransactionStatusPending)
	newer.UserID = userID

	require.NoError(t, store.Create(context.Background(), older))
	require.NoError(t, store.Create(context.Background(), newer))

	txs, err := store.ListByUser(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, newer.ID, txs[0].ID)
	assert.Equal(t, older.ID, txs[1].ID)
}
