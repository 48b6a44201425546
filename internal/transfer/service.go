// Package transfer orchestrates the remittance workflow: quote, card
// capture, mobile money payout and settlement confirmation.
package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"tumapesa/internal/domain"
	"tumapesa/internal/gateway"
	"tumapesa/internal/notification"
	"tumapesa/internal/payout"
	"tumapesa/internal/quote"
	"tumapesa/pkg/config"
	"tumapesa/pkg/errors"
	"tumapesa/pkg/logger"
)

// InitiateRequest is the validated send-money input.
type InitiateRequest struct {
	RecipientID  uuid.UUID
	SendAmount   decimal.Decimal
	SendCurrency domain.Currency
	Gateway      domain.Gateway
	CardToken    string
}

type Service struct {
	ledger     Ledger
	rates      RateProvider
	calculator *quote.Calculator
	kyc        KycGate
	recipients RecipientDirectory
	gateways   GatewayRegistry
	rail       PayoutRail
	notifier   Notifier
	cfg        config.TransferConfig
	sem        *semaphore.Weighted
	logger     logger.Logger

	// now is swappable in tests.
	now func() time.Time
}

func NewService(
	ledger Ledger,
	rates RateProvider,
	kycGate KycGate,
	recipients RecipientDirectory,
	gateways GatewayRegistry,
	rail PayoutRail,
	notifier Notifier,
	cfg config.TransferConfig,
	log logger.Logger,
) *Service {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if cfg.CaptureMaxAttempts <= 0 {
		cfg.CaptureMaxAttempts = 1
	}
	if cfg.DispatchMaxAttempts <= 0 {
		cfg.DispatchMaxAttempts = 1
	}
	return &Service{
		ledger:     ledger,
		rates:      rates,
		calculator: quote.NewCalculator(cfg.MaxSendAmount),
		kyc:        kycGate,
		recipients: recipients,
		gateways:   gateways,
		rail:       rail,
		notifier:   notifier,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(maxInFlight),
		logger:     log,
	}
}

// Initiate accepts a send-money request, snapshots the quote and persists the
// transaction in pending, then hands it to the asynchronous workflow. The
// returned transaction reflects acceptance, not the outcome.
func (s *Service) Initiate(ctx context.Context, userID uuid.UUID, req InitiateRequest) (*domain.Transaction, error) {
	if !isSendCurrency(req.SendCurrency) {
		return nil, errors.ErrInvalidCurrency
	}

	if _, err := s.kyc.RequireVerified(ctx, userID); err != nil {
		return nil, err
	}

	recipient, err := s.recipients.Get(ctx, userID, req.RecipientID)
	if err != nil {
		return nil, err
	}

	// Resolve the gateway up front so an unsupported name fails the request
	// instead of the workflow.
	if _, err := s.gateways.Get(req.Gateway); err != nil {
		return nil, err
	}

	rate, err := s.rates.GetRate(ctx, req.SendCurrency)
	if err != nil {
		return nil, err
	}

	q, err := s.calculator.Quote(req.SendAmount, rate)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	tx := &domain.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		RecipientID:    recipient.ID,
		SendAmount:     q.SendAmount,
		SendCurrency:   q.FromCurrency,
		ReceiveAmount:  q.ReceiveAmount,
		ExchangeRate:   q.Rate,
		FeePercentage:  q.FeePercentage,
		FeeAmount:      q.FeeAmount,
		TotalAmount:    q.TotalAmount,
		PaymentGateway: req.Gateway,
		Status:         domain.TransactionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.ledger.Create(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Info("Transfer accepted", map[string]interface{}{
		"transaction_id": tx.ID,
		"user_id":        userID,
		"send_amount":    tx.SendAmount.String(),
		"send_currency":  tx.SendCurrency,
		"total_amount":   tx.TotalAmount.String(),
		"gateway":        tx.PaymentGateway,
	})

	go s.notifier.NotifyTransfer(ctx, tx, recipient.FullName, notification.EventInitiated)

	go func() {
		// The workflow outlives the HTTP request.
		wctx := context.Background()
		if err := s.sem.Acquire(wctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		s.runWorkflow(wctx, tx, recipient, req.CardToken)
	}()

	return tx, nil
}

// Get returns one of the user's transactions.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Transaction, error) {
	return s.ledger.GetForUser(ctx, userID, id)
}

// List returns a page of the user's transaction history, newest first,
// together with the user's total transaction count.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	txs, err := s.ledger.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.ledger.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// ConfirmSettlement applies an asynchronous settlement signal, typically from
// the payout provider's webhook. The guarded status update makes duplicate
// and late signals harmless: only the first one out of paying_out lands.
func (s *Service) ConfirmSettlement(ctx context.Context, transactionID uuid.UUID, confirmation string, succeeded bool) error {
	tx, err := s.ledger.Get(ctx, transactionID)
	if err != nil {
		return err
	}

	if succeeded {
		now := s.clock()
		err = s.ledger.UpdateStatus(ctx, transactionID,
			domain.TransactionStatusPayingOut, domain.TransactionStatusDelivered,
			domain.StatusUpdate{
				SettlementReference: &confirmation,
				CompletedAt:         &now,
			})
	} else {
		err = s.ledger.UpdateStatus(ctx, transactionID,
			domain.TransactionStatusPayingOut, domain.TransactionStatusFailed,
			domain.StatusUpdate{Reason: "payout failed at provider"})
	}

	if errors.Is(err, errors.ErrStaleStatus) {
		// Already resolved by the poller or an earlier signal.
		s.logger.Info("Settlement signal ignored, transaction already resolved", map[string]interface{}{
			"transaction_id": transactionID,
			"status":         tx.Status,
		})
		return nil
	}
	if err != nil {
		return err
	}

	resolved, err := s.ledger.Get(ctx, transactionID)
	if err != nil {
		return err
	}

	if succeeded {
		s.notifyByID(ctx, resolved, notification.EventDelivered)
	} else {
		s.reverseCapture(ctx, resolved)
		s.notifyByID(ctx, resolved, notification.EventFailed)
	}
	return nil
}

// ResolveAbandoned settles a transaction left non-terminal by a crash.
// External systems are consulted before failing: an interrupted capture is
// replayed through the gateway's idempotency key to recover the charge
// reference, and a dispatched payout is checked against the rail so a
// transfer the provider already completed is delivered, not refunded.
func (s *Service) ResolveAbandoned(ctx context.Context, tx *domain.Transaction, reason string) error {
	if tx.Status.IsTerminal() {
		return nil
	}

	switch tx.Status {
	case domain.TransactionStatusCapturing:
		return s.resolveAbandonedCapture(ctx, tx, reason)
	case domain.TransactionStatusPayingOut:
		return s.resolveAbandonedPayout(ctx, tx, reason)
	default:
		return s.FailAbandoned(ctx, tx, reason)
	}
}

// resolveAbandonedCapture handles a crash between the gateway charge and the
// captured CAS. Replaying Capture with the same idempotency key returns the
// original charge if one landed; it never charges the card twice.
func (s *Service) resolveAbandonedCapture(ctx context.Context, tx *domain.Transaction, reason string) error {
	g, err := s.gateways.Get(tx.PaymentGateway)
	if err != nil {
		return s.FailAbandoned(ctx, tx, reason)
	}

	capture, err := g.Capture(ctx, gateway.CaptureRequest{
		TransactionID: tx.ID.String(),
		Amount:        tx.TotalAmount,
		Currency:      tx.SendCurrency,
		Description:   "Remittance " + tx.ID.String(),
	})
	if errors.Is(err, errors.ErrCaptureTransient) {
		// Gateway unreachable; leave the transaction for the next sweep.
		return err
	}
	if err != nil {
		// No charge ever landed.
		return s.FailAbandoned(ctx, tx, reason)
	}

	uerr := s.ledger.UpdateStatus(ctx, tx.ID, tx.Status, domain.TransactionStatusFailed,
		domain.StatusUpdate{Reason: reason, PaymentReference: &capture.Reference})
	if errors.Is(uerr, errors.ErrStaleStatus) {
		return nil
	}
	if uerr != nil {
		return uerr
	}

	failed, err := s.ledger.Get(ctx, tx.ID)
	if err != nil {
		return err
	}
	s.reverseCapture(ctx, failed)
	s.notifyByID(ctx, failed, notification.EventFailed)
	return nil
}

// resolveAbandonedPayout checks the rail for a dispatched payout before
// failing. A payout the provider completed while we were down is delivered
// with its receipt; anything else fails and refunds the capture.
func (s *Service) resolveAbandonedPayout(ctx context.Context, tx *domain.Transaction, reason string) error {
	if tx.PayoutReference == nil || *tx.PayoutReference == "" {
		return s.FailAbandoned(ctx, tx, reason)
	}

	status, err := s.rail.CheckStatus(ctx, *tx.PayoutReference)
	if err != nil {
		return err
	}

	if status.State != payout.StateCompleted {
		return s.FailAbandoned(ctx, tx, reason)
	}

	now := s.clock()
	uerr := s.ledger.UpdateStatus(ctx, tx.ID,
		domain.TransactionStatusPayingOut, domain.TransactionStatusDelivered,
		domain.StatusUpdate{
			SettlementReference: &status.Confirmation,
			CompletedAt:         &now,
		})
	if errors.Is(uerr, errors.ErrStaleStatus) {
		return nil
	}
	if uerr != nil {
		return uerr
	}

	delivered, err := s.ledger.Get(ctx, tx.ID)
	if err != nil {
		return err
	}
	s.notifyByID(ctx, delivered, notification.EventDelivered)
	return nil
}

// FailAbandoned force-fails a transaction left non-terminal by a crash,
// refunding the card if a capture reference was recorded.
func (s *Service) FailAbandoned(ctx context.Context, tx *domain.Transaction, reason string) error {
	if tx.Status.IsTerminal() {
		return nil
	}

	err := s.ledger.UpdateStatus(ctx, tx.ID, tx.Status, domain.TransactionStatusFailed,
		domain.StatusUpdate{Reason: reason})
	if errors.Is(err, errors.ErrStaleStatus) {
		return nil
	}
	if err != nil {
		return err
	}

	failed, err := s.ledger.Get(ctx, tx.ID)
	if err != nil {
		return err
	}
	s.reverseCapture(ctx, failed)
	s.notifyByID(ctx, failed, notification.EventFailed)
	return nil
}

func (s *Service) notifyByID(ctx context.Context, tx *domain.Transaction, event notification.Event) {
	name := "your recipient"
	if recipient, err := s.recipients.Get(ctx, tx.UserID, tx.RecipientID); err == nil {
		name = recipient.FullName
	}
	go s.notifier.NotifyTransfer(ctx, tx, name, event)
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func isSendCurrency(c domain.Currency) bool {
	for _, sc := range domain.SendCurrencies {
		if c == sc {
			return true
		}
	}
	return false
}

// Ledger stores transactions and serializes status transitions.
type Ledger interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TransactionStatus, update domain.StatusUpdate) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*domain.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// RateProvider supplies the corridor rate used for the quote snapshot.
type RateProvider interface {
	GetRate(ctx context.Context, from domain.Currency) (*domain.ExchangeRate, error)
}

// KycGate blocks senders whose identity is not approved.
type KycGate interface {
	RequireVerified(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}

// RecipientDirectory resolves payout destinations.
type RecipientDirectory interface {
	Get(ctx context.Context, userID, recipientID uuid.UUID) (*domain.Recipient, error)
}

// GatewayRegistry resolves a card gateway by name.
type GatewayRegistry interface {
	Get(name domain.Gateway) (gateway.CardGateway, error)
}

// PayoutRail dispatches payouts and reports their settlement state.
type PayoutRail interface {
	Dispatch(ctx context.Context, req payout.Request) (*payout.Handle, error)
	CheckStatus(ctx context.Context, reference string) (*payout.Status, error)
}

// Notifier records user-facing transfer messages.
type Notifier interface {
	NotifyTransfer(ctx context.Context, tx *domain.Transaction, recipientName string, event notification.Event)
}
