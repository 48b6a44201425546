package transfer

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
	"tumapesa/internal/gateway"
	"tumapesa/internal/notification"
	"tumapesa/internal/payout"
	"tumapesa/internal/repository/memory"
	"tumapesa/pkg/config"
	"tumapesa/pkg/errors"
	"tumapesa/pkg/logger"
)

// --- Test doubles ---

type stubRates struct {
	rate *domain.ExchangeRate
	err  error
}

func (s stubRates) GetRate(_ context.Context, _ domain.Currency) (*domain.ExchangeRate, error) {
	return s.rate, s.err
}

type stubKyc struct {
	status domain.KycStatus
}

func (s stubKyc) RequireVerified(_ context.Context, userID uuid.UUID) (*domain.Profile, error) {
	if s.status != domain.KycStatusApproved {
		return nil, errors.ErrKycRequired
	}
	return &domain.Profile{ID: userID, KycStatus: s.status}, nil
}

type stubRecipients struct {
	recipient *domain.Recipient
	err       error
}

func (s stubRecipients) Get(_ context.Context, _, _ uuid.UUID) (*domain.Recipient, error) {
	return s.recipient, s.err
}

type fakeGateway struct {
	mu        sync.Mutex
	captureFn func(attempt int) (*gateway.CaptureResult, error)
	captures  int
	reversals []string
}

func (g *fakeGateway) Name() domain.Gateway { return domain.GatewayStripe }

func (g *fakeGateway) Capture(_ context.Context, _ gateway.CaptureRequest) (*gateway.CaptureResult, error) {
	g.mu.Lock()
	g.captures++
	attempt := g.captures
	g.mu.Unlock()
	return g.captureFn(attempt)
}

func (g *fakeGateway) Reverse(_ context.Context, reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reversals = append(g.reversals, reference)
	return nil
}

func (g *fakeGateway) captureCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captures
}

func (g *fakeGateway) reversed() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.reversals...)
}

type fakeRail struct {
	mu         sync.Mutex
	dispatches int
	dispatchFn func(attempt int) (*payout.Handle, error)
	statusFn   func() (*payout.Status, error)
}

func (r *fakeRail) Dispatch(_ context.Context, _ payout.Request) (*payout.Handle, error) {
	r.mu.Lock()
	r.dispatches++
	attempt := r.dispatches
	r.mu.Unlock()
	if r.dispatchFn != nil {
		return r.dispatchFn(attempt)
	}
	return &payout.Handle{Reference: "AG_1"}, nil
}

func (r *fakeRail) CheckStatus(_ context.Context, _ string) (*payout.Status, error) {
	if r.statusFn != nil {
		return r.statusFn()
	}
	return &payout.Status{State: payout.StatePending}, nil
}

func (r *fakeRail) dispatchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dispatches
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *fakeNotifier) NotifyTransfer(_ context.Context, _ *domain.Transaction, _ string, event notification.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) count(event notification.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

// --- Fixture ---

type fixture struct {
	svc      *Service
	ledger   *memory.TransactionStore
	gateway  *fakeGateway
	rail     *fakeRail
	notifier *fakeNotifier
	userID   uuid.UUID
	req      InitiateRequest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	userID := uuid.New()
	recipientID := uuid.New()

	ledger := memory.NewTransactionStore()
	g := &fakeGateway{
		captureFn: func(int) (*gateway.CaptureResult, error) {
			return &gateway.CaptureResult{Reference: "ch_1"}, nil
		},
	}
	rail := &fakeRail{
		statusFn: func() (*payout.Status, error) {
			return &payout.Status{State: payout.StateCompleted, Confirmation: "SGH12XYZ99"}, nil
		},
	}
	notifier := &fakeNotifier{}

	cfg := config.TransferConfig{
		MaxSendAmount:       decimal.NewFromInt(10000),
		MaxInFlight:         4,
		CaptureMaxAttempts:  3,
		DispatchMaxAttempts: 3,
		RetryBaseDelay:      time.Millisecond,
		SettlementTimeout:   time.Second,
		SettlementPoll:      2 * time.Millisecond,
	}

	svc := NewService(
		ledger,
		stubRates{rate: &domain.ExchangeRate{
			FromCurrency:  domain.USD,
			ToCurrency:    domain.KES,
			Rate:          decimal.NewFromInt(130),
			FeePercentage: decimal.RequireFromString("2.5"),
		}},
		stubKyc{status: domain.KycStatusApproved},
		stubRecipients{recipient: &domain.Recipient{
			ID:          recipientID,
			UserID:      userID,
			FullName:    "Jane Wanjiku",
			MpesaNumber: "+254712345678",
		}},
		gateway.NewRegistry(g),
		rail,
		notifier,
		cfg,
		logger.NewNop(),
	)

	return &fixture{
		svc:      svc,
		ledger:   ledger,
		gateway:  g,
		rail:     rail,
		notifier: notifier,
		userID:   userID,
		req: InitiateRequest{
			RecipientID:  recipientID,
			SendAmount:   decimal.RequireFromString("100"),
			SendCurrency: domain.USD,
			Gateway:      domain.GatewayStripe,
			CardToken:    "tok_visa",
		},
	}
}

func (f *fixture) awaitStatus(t *testing.T, id uuid.UUID, want domain.TransactionStatus) *domain.Transaction {
	t.Helper()
	var tx *domain.Transaction
	require.Eventually(t, func() bool {
		got, err := f.ledger.Get(context.Background(), id)
		if err != nil {
			return false
		}
		tx = got
		return got.Status == want
	}, 2*time.Second, time.Millisecond)
	return tx
}

// --- Tests ---

func TestInitiate_QuoteSnapshot(t *testing.T) {
	f := newFixture(t)

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusPending, tx.Status)
	assert.Equal(t, "13000.00", tx.ReceiveAmount.StringFixed(2))
	assert.Equal(t, "2.50", tx.FeeAmount.StringFixed(2))
	assert.Equal(t, "102.50", tx.TotalAmount.StringFixed(2))
	assert.Equal(t, "130", tx.ExchangeRate.String())
}

func TestWorkflow_HappyPathDelivers(t *testing.T) {
	f := newFixture(t)

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	final := f.awaitStatus(t, tx.ID, domain.TransactionStatusDelivered)

	require.NotNil(t, final.PaymentReference)
	assert.Equal(t, "ch_1", *final.PaymentReference)
	require.NotNil(t, final.SettlementReference)
	assert.Equal(t, "SGH12XYZ99", *final.SettlementReference)
	assert.NotNil(t, final.CompletedAt)
	assert.Empty(t, f.gateway.reversed())

	assert.Eventually(t, func() bool {
		return f.notifier.count(notification.EventDelivered) == 1
	}, time.Second, time.Millisecond)
}

func TestWorkflow_DeclinedCardFailsWithoutPayout(t *testing.T) {
	f := newFixture(t)
	f.gateway.captureFn = func(int) (*gateway.CaptureResult, error) {
		return nil, errors.Wrap(errors.ErrCaptureDeclined, "insufficient funds")
	}
	f.req.SendAmount = decimal.RequireFromString("50")
	f.req.SendCurrency = domain.GBP

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	final := f.awaitStatus(t, tx.ID, domain.TransactionStatusFailed)

	assert.Equal(t, "card declined", final.StatusReason)
	assert.Equal(t, 1, f.gateway.captureCount())
	assert.Equal(t, 0, f.rail.dispatchCount())
	assert.Empty(t, f.gateway.reversed())
	assert.Nil(t, final.PaymentReference)

	assert.Eventually(t, func() bool {
		return f.notifier.count(notification.EventFailed) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, f.notifier.count(notification.EventReversed))
}

func TestWorkflow_TransientCaptureRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t)
	f.gateway.captureFn = func(attempt int) (*gateway.CaptureResult, error) {
		if attempt < 3 {
			return nil, errors.Wrap(errors.ErrCaptureTransient, "gateway timeout")
		}
		return &gateway.CaptureResult{Reference: "ch_1"}, nil
	}

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	f.awaitStatus(t, tx.ID, domain.TransactionStatusDelivered)
	assert.Equal(t, 3, f.gateway.captureCount())
}

func TestWorkflow_ExhaustedTransientCaptureFails(t *testing.T) {
	f := newFixture(t)
	f.gateway.captureFn = func(int) (*gateway.CaptureResult, error) {
		return nil, errors.Wrap(errors.ErrCaptureTransient, "gateway timeout")
	}

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	final := f.awaitStatus(t, tx.ID, domain.TransactionStatusFailed)
	assert.Equal(t, "card capture failed", final.StatusReason)
	assert.Equal(t, 3, f.gateway.captureCount())
	assert.Equal(t, 0, f.rail.dispatchCount())
}

func TestWorkflow_PayoutRejectionRefundsCapture(t *testing.T) {
	f := newFixture(t)
	f.rail.dispatchFn = func(int) (*payout.Handle, error) {
		return nil, errors.Wrap(errors.ErrPayoutRejected, "invalid msisdn")
	}

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	final := f.awaitStatus(t, tx.ID, domain.TransactionStatusFailed)
	assert.Equal(t, "payout dispatch failed", final.StatusReason)
	assert.Equal(t, []string{"ch_1"}, f.gateway.reversed())

	assert.Eventually(t, func() bool {
		return f.notifier.count(notification.EventReversed) == 1
	}, time.Second, time.Millisecond)
}

func TestWorkflow_SettlementTimeoutFailsAndRefunds(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.SettlementTimeout = 30 * time.Millisecond
	f.rail.statusFn = func() (*payout.Status, error) {
		return &payout.Status{State: payout.StatePending}, nil
	}

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	final := f.awaitStatus(t, tx.ID, domain.TransactionStatusFailed)
	assert.Equal(t, "settlement confirmation timed out", final.StatusReason)
	assert.Equal(t, []string{"ch_1"}, f.gateway.reversed())

	assert.Eventually(t, func() bool {
		return f.notifier.count(notification.EventFailed) == 1 &&
			f.notifier.count(notification.EventReversed) == 1
	}, time.Second, time.Millisecond)
}

func TestConfirmSettlement_ConcurrentSignalsResolveOnce(t *testing.T) {
	f := newFixture(t)
	f.rail.statusFn = func() (*payout.Status, error) {
		return &payout.Status{State: payout.StatePending}, nil
	}

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	f.awaitStatus(t, tx.ID, domain.TransactionStatusPayingOut)

	const signals = 8
	var wg sync.WaitGroup
	for i := 0; i < signals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.ConfirmSettlement(context.Background(), tx.ID, "SGH12XYZ99", true))
		}()
	}
	wg.Wait()

	final, err := f.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusDelivered, final.Status)
	require.NotNil(t, final.SettlementReference)
	assert.Equal(t, "SGH12XYZ99", *final.SettlementReference)

	assert.Eventually(t, func() bool {
		return f.notifier.count(notification.EventDelivered) == 1
	}, time.Second, time.Millisecond)
}

func TestConfirmSettlement_LateSignalAfterTerminalIsNoop(t *testing.T) {
	f := newFixture(t)

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	f.awaitStatus(t, tx.ID, domain.TransactionStatusDelivered)

	require.NoError(t, f.svc.ConfirmSettlement(context.Background(), tx.ID, "LATE", true))

	final, err := f.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusDelivered, final.Status)
	assert.Equal(t, "SGH12XYZ99", *final.SettlementReference)
}

func TestConfirmSettlement_UnknownTransaction(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ConfirmSettlement(context.Background(), uuid.New(), "X", true)
	assert.ErrorIs(t, err, errors.ErrTransactionNotFound)
}

func TestInitiate_Rejections(t *testing.T) {
	t.Run("unsupported currency", func(t *testing.T) {
		f := newFixture(t)
		f.req.SendCurrency = domain.KES
		_, err := f.svc.Initiate(context.Background(), f.userID, f.req)
		assert.ErrorIs(t, err, errors.ErrInvalidCurrency)
	})

	t.Run("kyc not approved", func(t *testing.T) {
		f := newFixture(t)
		f.svc.kyc = stubKyc{status: domain.KycStatusPending}
		_, err := f.svc.Initiate(context.Background(), f.userID, f.req)
		assert.ErrorIs(t, err, errors.ErrKycRequired)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		f := newFixture(t)
		f.svc.recipients = stubRecipients{err: errors.ErrRecipientNotFound}
		_, err := f.svc.Initiate(context.Background(), f.userID, f.req)
		assert.ErrorIs(t, err, errors.ErrRecipientNotFound)
	})

	t.Run("unsupported gateway", func(t *testing.T) {
		f := newFixture(t)
		f.req.Gateway = domain.Gateway("paypal")
		_, err := f.svc.Initiate(context.Background(), f.userID, f.req)
		assert.ErrorIs(t, err, errors.ErrUnsupportedGateway)
	})

	t.Run("amount above ceiling", func(t *testing.T) {
		f := newFixture(t)
		f.req.SendAmount = decimal.RequireFromString("10000.01")
		_, err := f.svc.Initiate(context.Background(), f.userID, f.req)
		assert.ErrorIs(t, err, errors.ErrAmountExceedsLimit)
	})

	t.Run("rate unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.svc.rates = stubRates{err: errors.ErrRateUnavailable}
		_, err := f.svc.Initiate(context.Background(), f.userID, f.req)
		assert.ErrorIs(t, err, errors.ErrRateUnavailable)
	})
}

// strand seeds a transaction directly into the ledger mid-workflow, the way
// a crash would leave it.
func (f *fixture) strand(t *testing.T, status domain.TransactionStatus, paymentRef, payoutRef *string) *domain.Transaction {
	t.Helper()
	tx := &domain.Transaction{
		ID:               uuid.New(),
		UserID:           f.userID,
		RecipientID:      f.req.RecipientID,
		SendAmount:       decimal.RequireFromString("100"),
		SendCurrency:     domain.USD,
		ReceiveAmount:    decimal.RequireFromString("13000"),
		ExchangeRate:     decimal.NewFromInt(130),
		FeePercentage:    decimal.RequireFromString("2.5"),
		FeeAmount:        decimal.RequireFromString("2.50"),
		TotalAmount:      decimal.RequireFromString("102.50"),
		PaymentGateway:   domain.GatewayStripe,
		Status:           status,
		PaymentReference: paymentRef,
		PayoutReference:  payoutRef,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	require.NoError(t, f.ledger.Create(context.Background(), tx))
	return tx
}

func TestWorkflow_PersistsPayoutHandle(t *testing.T) {
	f := newFixture(t)
	f.rail.statusFn = func() (*payout.Status, error) {
		return &payout.Status{State: payout.StatePending}, nil
	}

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	stored := f.awaitStatus(t, tx.ID, domain.TransactionStatusPayingOut)
	require.NotNil(t, stored.PayoutReference)
	assert.Equal(t, "AG_1", *stored.PayoutReference)
}

func TestResolveAbandoned_DeliversPayoutCompletedAtProvider(t *testing.T) {
	f := newFixture(t)
	ref := "AG_7"
	tx := f.strand(t, domain.TransactionStatusPayingOut, nil, &ref)

	require.NoError(t, f.svc.ResolveAbandoned(context.Background(), tx, "abandoned after restart"))

	final, err := f.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusDelivered, final.Status)
	require.NotNil(t, final.SettlementReference)
	assert.Equal(t, "SGH12XYZ99", *final.SettlementReference)
	assert.NotNil(t, final.CompletedAt)
	assert.Empty(t, f.gateway.reversed())

	assert.Eventually(t, func() bool {
		return f.notifier.count(notification.EventDelivered) == 1
	}, time.Second, time.Millisecond)
}

func TestResolveAbandoned_FailsAndRefundsUnsettledPayout(t *testing.T) {
	f := newFixture(t)
	f.rail.statusFn = func() (*payout.Status, error) {
		return &payout.Status{State: payout.StateFailed}, nil
	}
	ref := "AG_7"
	captureRef := "ch_1"
	tx := f.strand(t, domain.TransactionStatusPayingOut, &captureRef, &ref)

	require.NoError(t, f.svc.ResolveAbandoned(context.Background(), tx, "abandoned after restart"))

	final, err := f.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, final.Status)
	assert.Equal(t, []string{"ch_1"}, f.gateway.reversed())
}

func TestResolveAbandoned_RecoversInterruptedCapture(t *testing.T) {
	f := newFixture(t)
	f.gateway.captureFn = func(int) (*gateway.CaptureResult, error) {
		return &gateway.CaptureResult{Reference: "ch_42"}, nil
	}
	tx := f.strand(t, domain.TransactionStatusCapturing, nil, nil)

	require.NoError(t, f.svc.ResolveAbandoned(context.Background(), tx, "abandoned after restart"))

	final, err := f.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, final.Status)
	assert.Equal(t, "abandoned after restart", final.StatusReason)
	require.NotNil(t, final.PaymentReference)
	assert.Equal(t, "ch_42", *final.PaymentReference)
	assert.Equal(t, []string{"ch_42"}, f.gateway.reversed())
}

func TestResolveAbandoned_TransientGatewayDefersToNextSweep(t *testing.T) {
	f := newFixture(t)
	f.gateway.captureFn = func(int) (*gateway.CaptureResult, error) {
		return nil, errors.Wrap(errors.ErrCaptureTransient, "gateway timeout")
	}
	tx := f.strand(t, domain.TransactionStatusCapturing, nil, nil)

	err := f.svc.ResolveAbandoned(context.Background(), tx, "abandoned after restart")
	assert.ErrorIs(t, err, errors.ErrCaptureTransient)

	still, gerr := f.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.TransactionStatusCapturing, still.Status)
	assert.Empty(t, f.gateway.reversed())
}

func TestNewService_ClampsNonPositiveAttempts(t *testing.T) {
	f := newFixture(t)
	cfg := f.svc.cfg
	cfg.CaptureMaxAttempts = 0
	cfg.DispatchMaxAttempts = -1

	svc := NewService(f.ledger, f.svc.rates, f.svc.kyc, f.svc.recipients,
		f.svc.gateways, f.rail, f.notifier, cfg, logger.NewNop())

	tx, err := svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	f.awaitStatus(t, tx.ID, domain.TransactionStatusDelivered)
	assert.Equal(t, 1, f.gateway.captureCount())
	assert.Equal(t, 1, f.rail.dispatchCount())
}

func TestList_PaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
		require.NoError(t, err)
		ids = append(ids, tx.ID)
		f.awaitStatus(t, tx.ID, domain.TransactionStatusDelivered)
	}

	txs, total, err := f.svc.List(context.Background(), f.userID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, txs, 2)

	rest, total, err := f.svc.List(context.Background(), f.userID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rest, 1)

	seen := map[uuid.UUID]bool{txs[0].ID: true, txs[1].ID: true, rest[0].ID: true}
	for _, id := range ids {
		assert.True(t, seen[id])
	}

	other, total, err := f.svc.List(context.Background(), uuid.New(), 20, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, other)
}

func TestFailAbandoned_RefundsCapturedTransaction(t *testing.T) {
	f := newFixture(t)
	f.rail.statusFn = func() (*payout.Status, error) {
		return &payout.Status{State: payout.StatePending}, nil
	}

	tx, err := f.svc.Initiate(context.Background(), f.userID, f.req)
	require.NoError(t, err)

	stuck := f.awaitStatus(t, tx.ID, domain.TransactionStatusPayingOut)

	require.NoError(t, f.svc.FailAbandoned(context.Background(), stuck, "abandoned after restart"))

	final, err := f.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, final.Status)
	assert.Equal(t, "abandoned after restart", final.StatusReason)
	assert.Equal(t, []string{"ch_1"}, f.gateway.reversed())
}
