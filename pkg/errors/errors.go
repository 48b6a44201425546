// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Validation and pre-acceptance errors. Surfaced synchronously to the caller.
var (
	ErrInvalidAmount      = errors.New("send amount must be greater than zero")
	ErrAmountExceedsLimit = errors.New("send amount exceeds per-transaction limit")
	ErrInvalidCurrency    = errors.New("unsupported send currency")
	ErrRateUnavailable    = errors.New("exchange rate not available")
	ErrKycRequired        = errors.New("kyc verification required")
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrDuplicateRequest   = errors.New("duplicate request")

	ErrNotificationNotFound = errors.New("notification not found")
)

// Capture errors.
var (
	ErrCaptureDeclined    = errors.New("payment capture declined")
	ErrCaptureTransient   = errors.New("payment capture transient failure")
	ErrUnsupportedGateway = errors.New("unsupported payment gateway")
)

// Payout and settlement errors.
var (
	ErrPayoutRejected    = errors.New("payout rejected by mobile money rail")
	ErrPayoutDispatch    = errors.New("payout dispatch failure")
	ErrSettlementTimeout = errors.New("settlement confirmation timed out")
)

// Ledger errors.
var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
	ErrStaleStatus              = errors.New("transaction status changed concurrently")
	ErrInvalidTransition        = errors.New("illegal status transition")
)

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
