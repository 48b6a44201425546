package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tumapesa/internal/domain"
	"tumapesa/pkg/logger"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockRepository) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *MockRepository) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	args := m.Called(ctx, userID, notificationID)
	return args.Error(0)
}

func sampleTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		SendAmount:    decimal.RequireFromString("100.00"),
		SendCurrency:  domain.USD,
		ReceiveAmount: decimal.RequireFromString("13000.00"),
		TotalAmount:   decimal.RequireFromString("102.50"),
	}
}

func TestNotifyTransfer_Delivered(t *testing.T) {
	tx := sampleTransaction()

	repo := new(MockRepository)
	var stored *domain.Notification
	repo.On("CreateNotification", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.Notification)
	}).Return(nil)

	svc := NewService(repo, logger.NewNop())
	svc.NotifyTransfer(context.Background(), tx, "Jane Wanjiku", EventDelivered)

	require.NotNil(t, stored)
	assert.Equal(t, tx.UserID, stored.UserID)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, tx.ID, *stored.TransactionID)
	assert.Equal(t, domain.NotificationTypeTransaction, stored.Type)
	assert.Contains(t, stored.Message, "13000.00")
	assert.Contains(t, stored.Message, "Jane Wanjiku")
	assert.False(t, stored.IsRead)
}

func TestNotifyTransfer_FailedIncludesReason(t *testing.T) {
	tx := sampleTransaction()
	tx.StatusReason = "card declined"

	repo := new(MockRepository)
	var stored *domain.Notification
	repo.On("CreateNotification", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.Notification)
	}).Return(nil)

	svc := NewService(repo, logger.NewNop())
	svc.NotifyTransfer(context.Background(), tx, "Jane Wanjiku", EventFailed)

	require.NotNil(t, stored)
	assert.Equal(t, "Transfer failed", stored.Title)
	assert.Contains(t, stored.Message, "card declined")
}

func TestNotifyTransfer_UnknownEventStoresNothing(t *testing.T) {
	repo := new(MockRepository)

	svc := NewService(repo, logger.NewNop())
	svc.NotifyTransfer(context.Background(), sampleTransaction(), "Jane", Event("SOMETHING_ELSE"))

	repo.AssertNotCalled(t, "CreateNotification", mock.Anything, mock.Anything)
}

func TestNotifyTransfer_SurvivesCancelledContext(t *testing.T) {
	repo := new(MockRepository)
	repo.On("CreateNotification", mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(repo, logger.NewNop())
	svc.NotifyTransfer(ctx, sampleTransaction(), "Jane", EventInitiated)

	repo.AssertCalled(t, "CreateNotification", mock.Anything, mock.Anything)
}
