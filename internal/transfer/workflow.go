package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tumapesa/internal/domain"
	"tumapesa/internal/gateway"
	"tumapesa/internal/notification"
	"tumapesa/internal/payout"
	"tumapesa/pkg/errors"
)

// runWorkflow drives one accepted transfer from pending to a terminal state.
// Every transition goes through the ledger's guarded update, so a concurrent
// settlement signal or a second worker can never move the transaction twice.
func (s *Service) runWorkflow(ctx context.Context, tx *domain.Transaction, recipient *domain.Recipient, cardToken string) {
	log := func(msg string, extra map[string]interface{}) {
		fields := map[string]interface{}{"transaction_id": tx.ID}
		for k, v := range extra {
			fields[k] = v
		}
		s.logger.Info(msg, fields)
	}

	if err := s.ledger.UpdateStatus(ctx, tx.ID,
		domain.TransactionStatusPending, domain.TransactionStatusCapturing,
		domain.StatusUpdate{}); err != nil {
		s.logger.Warn("Workflow lost the pending transition", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
		return
	}

	cardGateway, err := s.gateways.Get(tx.PaymentGateway)
	if err != nil {
		s.fail(ctx, tx, domain.TransactionStatusCapturing, "gateway unavailable", nil)
		return
	}

	capture, err := s.captureWithRetry(ctx, cardGateway, tx, cardToken)
	if err != nil {
		reason := "card capture failed"
		if errors.Is(err, errors.ErrCaptureDeclined) {
			reason = "card declined"
		}
		s.fail(ctx, tx, domain.TransactionStatusCapturing, reason, nil)
		return
	}
	log("Card captured", map[string]interface{}{"payment_reference": capture.Reference})

	if err := s.ledger.UpdateStatus(ctx, tx.ID,
		domain.TransactionStatusCapturing, domain.TransactionStatusCaptured,
		domain.StatusUpdate{PaymentReference: &capture.Reference}); err != nil {
		s.reversePayment(ctx, cardGateway, tx.ID, capture.Reference)
		return
	}

	handle, err := s.dispatchWithRetry(ctx, tx, recipient)
	if err != nil {
		s.fail(ctx, tx, domain.TransactionStatusCaptured, "payout dispatch failed", &capture.Reference)
		return
	}
	log("Payout dispatched", map[string]interface{}{"payout_reference": handle.Reference})

	// The handle must survive a crash: recovery queries the rail with it
	// instead of blind-failing a payout that may still complete.
	if err := s.ledger.UpdateStatus(ctx, tx.ID,
		domain.TransactionStatusCaptured, domain.TransactionStatusPayingOut,
		domain.StatusUpdate{PayoutReference: &handle.Reference}); err != nil {
		return
	}

	s.awaitSettlement(ctx, tx, handle.Reference)
}

// captureWithRetry charges the card, retrying transient gateway failures with
// exponential backoff. A decline is final on the first occurrence.
func (s *Service) captureWithRetry(ctx context.Context, g gateway.CardGateway, tx *domain.Transaction, cardToken string) (*gateway.CaptureResult, error) {
	req := gateway.CaptureRequest{
		TransactionID: tx.ID.String(),
		Amount:        tx.TotalAmount,
		Currency:      tx.SendCurrency,
		CardToken:     cardToken,
		Description:   "Remittance " + tx.ID.String(),
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.CaptureMaxAttempts; attempt++ {
		result, err := g.Capture(ctx, req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, errors.ErrCaptureTransient) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("Card capture attempt failed", map[string]interface{}{
			"transaction_id": tx.ID,
			"attempt":        attempt,
			"error":          err.Error(),
		})
		if attempt < s.cfg.CaptureMaxAttempts {
			if !s.sleep(ctx, s.backoff(attempt)) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (s *Service) dispatchWithRetry(ctx context.Context, tx *domain.Transaction, recipient *domain.Recipient) (*payout.Handle, error) {
	req := payout.Request{
		TransactionID: tx.ID.String(),
		Amount:        tx.ReceiveAmount,
		MpesaNumber:   recipient.MpesaNumber,
		RecipientName: recipient.FullName,
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.DispatchMaxAttempts; attempt++ {
		handle, err := s.rail.Dispatch(ctx, req)
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, errors.ErrPayoutDispatch) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("Payout dispatch attempt failed", map[string]interface{}{
			"transaction_id": tx.ID,
			"attempt":        attempt,
			"error":          err.Error(),
		})
		if attempt < s.cfg.DispatchMaxAttempts {
			if !s.sleep(ctx, s.backoff(attempt)) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// awaitSettlement polls the payout rail until the provider confirms, the
// webhook resolves the transaction first, or the settlement window closes.
func (s *Service) awaitSettlement(ctx context.Context, tx *domain.Transaction, payoutRef string) {
	deadline := time.NewTimer(s.cfg.SettlementTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			err := s.ledger.UpdateStatus(ctx, tx.ID,
				domain.TransactionStatusPayingOut, domain.TransactionStatusFailed,
				domain.StatusUpdate{Reason: errors.ErrSettlementTimeout.Error()})
			if err != nil {
				// The webhook resolved it before the window closed.
				return
			}
			failed, err := s.ledger.Get(ctx, tx.ID)
			if err != nil {
				return
			}
			s.reverseCapture(ctx, failed)
			s.notifyByID(ctx, failed, notification.EventFailed)
			return

		case <-ticker.C:
			status, err := s.rail.CheckStatus(ctx, payoutRef)
			if err != nil {
				s.logger.Warn("Payout status poll failed", map[string]interface{}{
					"transaction_id": tx.ID,
					"error":          err.Error(),
				})
				continue
			}

			switch status.State {
			case payout.StateCompleted:
				now := s.clock()
				err := s.ledger.UpdateStatus(ctx, tx.ID,
					domain.TransactionStatusPayingOut, domain.TransactionStatusDelivered,
					domain.StatusUpdate{
						SettlementReference: &status.Confirmation,
						CompletedAt:         &now,
					})
				if err != nil {
					// Lost the race to the webhook; nothing left to do.
					return
				}
				delivered, err := s.ledger.Get(ctx, tx.ID)
				if err != nil {
					return
				}
				s.notifyByID(ctx, delivered, notification.EventDelivered)
				return

			case payout.StateFailed:
				err := s.ledger.UpdateStatus(ctx, tx.ID,
					domain.TransactionStatusPayingOut, domain.TransactionStatusFailed,
					domain.StatusUpdate{Reason: "payout failed at provider"})
				if err != nil {
					return
				}
				failed, err := s.ledger.Get(ctx, tx.ID)
				if err != nil {
					return
				}
				s.reverseCapture(ctx, failed)
				s.notifyByID(ctx, failed, notification.EventFailed)
				return
			}
		}
	}
}

// fail moves the transaction to failed from the given state and, when a
// capture reference exists, refunds the card.
func (s *Service) fail(ctx context.Context, tx *domain.Transaction, from domain.TransactionStatus, reason string, captureRef *string) {
	err := s.ledger.UpdateStatus(ctx, tx.ID, from, domain.TransactionStatusFailed,
		domain.StatusUpdate{Reason: reason, PaymentReference: captureRef})
	if err != nil {
		s.logger.Warn("Lost the failure transition", map[string]interface{}{
			"transaction_id": tx.ID,
			"from":           from,
			"error":          err.Error(),
		})
		return
	}

	failed, err := s.ledger.Get(ctx, tx.ID)
	if err != nil {
		return
	}
	s.reverseCapture(ctx, failed)
	s.notifyByID(ctx, failed, notification.EventFailed)
}

// reverseCapture refunds the card charge recorded on a failed transaction.
// Money already captured must go back even though the transfer itself is dead.
func (s *Service) reverseCapture(ctx context.Context, tx *domain.Transaction) {
	if tx.PaymentReference == nil || *tx.PaymentReference == "" {
		return
	}
	cardGateway, err := s.gateways.Get(tx.PaymentGateway)
	if err != nil {
		s.logger.Error("Cannot reverse capture, gateway unavailable", map[string]interface{}{
			"transaction_id": tx.ID,
			"gateway":        tx.PaymentGateway,
		})
		return
	}
	s.reversePayment(ctx, cardGateway, tx.ID, *tx.PaymentReference)
	s.notifyByID(ctx, tx, notification.EventReversed)
}

func (s *Service) reversePayment(ctx context.Context, g gateway.CardGateway, txID uuid.UUID, reference string) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.CaptureMaxAttempts; attempt++ {
		if lastErr = g.Reverse(ctx, reference); lastErr == nil {
			s.logger.Info("Capture reversed", map[string]interface{}{
				"transaction_id":    txID,
				"payment_reference": reference,
			})
			return
		}
		if attempt < s.cfg.CaptureMaxAttempts {
			if !s.sleep(ctx, s.backoff(attempt)) {
				break
			}
		}
	}
	// Left for manual reconciliation.
	s.logger.Error("Failed to reverse capture", map[string]interface{}{
		"transaction_id":    txID,
		"payment_reference": reference,
		"error":             lastErr.Error(),
	})
}

func (s *Service) backoff(attempt int) time.Duration {
	base := s.cfg.RetryBaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return base << (attempt - 1)
}

func (s *Service) pollInterval() time.Duration {
	if s.cfg.SettlementPoll > 0 {
		return s.cfg.SettlementPoll
	}
	return 3 * time.Second
}

func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
