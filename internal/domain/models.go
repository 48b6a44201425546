// Package domain holds the core remittance model shared across services.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency represents ISO 4217 currency codes.
type Currency string

const (
	USD Currency = "USD"
	GBP Currency = "GBP"
	EUR Currency = "EUR"
	KES Currency = "KES" // payout currency, Kenyan Shilling
)

// SendCurrencies is the closed set a transfer may be funded in.
var SendCurrencies = []Currency{USD, GBP, EUR}

// Gateway identifies a card capture gateway. The set is closed; dispatch
// happens through the gateway registry, never by string comparison in
// business code.
type Gateway string

const (
	GatewayStripe      Gateway = "stripe"
	GatewayFlutterwave Gateway = "flutterwave"
)

// KycStatus mirrors the identity service's verification states.
type KycStatus string

const (
	KycStatusPending     KycStatus = "pending"
	KycStatusUnderReview KycStatus = "under_review"
	KycStatusApproved    KycStatus = "approved"
	KycStatusRejected    KycStatus = "rejected"
)

// Quote is the point-in-time snapshot of amounts for one transfer. Rate and
// fee percentage are captured when the quote is computed and never re-derived,
// even if the live rate changes afterwards.
type Quote struct {
	FromCurrency  Currency        `json:"from_currency"`
	ToCurrency    Currency        `json:"to_currency"`
	Rate          decimal.Decimal `json:"rate"`
	FeePercentage decimal.Decimal `json:"fee_percentage"`
	SendAmount    decimal.Decimal `json:"send_amount"`
	ReceiveAmount decimal.Decimal `json:"receive_amount"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// Transaction is one remittance transfer. Owned by the workflow orchestrator
// after creation; the ledger only stores and retrieves it. The id doubles as
// the idempotency key for capture and payout.
type Transaction struct {
	ID                  uuid.UUID         `json:"id" db:"id"`
	UserID              uuid.UUID         `json:"user_id" db:"user_id"`
	RecipientID         uuid.UUID         `json:"recipient_id" db:"recipient_id"`
	SendAmount          decimal.Decimal   `json:"send_amount" db:"send_amount"`
	SendCurrency        Currency          `json:"send_currency" db:"send_currency"`
	ReceiveAmount       decimal.Decimal   `json:"receive_amount" db:"receive_amount"`
	ExchangeRate        decimal.Decimal   `json:"exchange_rate" db:"exchange_rate"`
	FeePercentage       decimal.Decimal   `json:"fee_percentage" db:"fee_percentage"`
	FeeAmount           decimal.Decimal   `json:"fee_amount" db:"fee_amount"`
	TotalAmount         decimal.Decimal   `json:"total_amount" db:"total_amount"`
	PaymentGateway      Gateway           `json:"payment_gateway" db:"payment_gateway"`
	Status              TransactionStatus `json:"status" db:"status"`
	StatusReason        string            `json:"status_reason" db:"status_reason"`
	PaymentReference    *string           `json:"payment_reference,omitempty" db:"payment_reference"`
	PayoutReference     *string           `json:"payout_reference,omitempty" db:"payout_reference"`
	SettlementReference *string           `json:"settlement_reference,omitempty" db:"settlement_reference"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" db:"updated_at"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// QuoteSnapshot reconstructs the quote stored on the transaction.
func (t *Transaction) QuoteSnapshot() Quote {
	return Quote{
		FromCurrency:  t.SendCurrency,
		ToCurrency:    KES,
		Rate:          t.ExchangeRate,
		FeePercentage: t.FeePercentage,
		SendAmount:    t.SendAmount,
		ReceiveAmount: t.ReceiveAmount,
		FeeAmount:     t.FeeAmount,
		TotalAmount:   t.TotalAmount,
	}
}

// Recipient is an address-book entry. Read-only to the workflow engine.
type Recipient struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	FullName    string    `json:"full_name" db:"full_name"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	MpesaNumber string    `json:"mpesa_number" db:"mpesa_number"`
	Country     string    `json:"country" db:"country"`
	IsFavorite  bool      `json:"is_favorite" db:"is_favorite"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the slice of the identity record this engine reads.
type Profile struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	FullName  string    `json:"full_name" db:"full_name"`
	Country   string    `json:"country" db:"country"`
	KycStatus KycStatus `json:"kyc_status" db:"kyc_status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NotificationType categorizes user-facing messages.
type NotificationType string

const (
	NotificationTypeTransaction NotificationType = "transaction"
	NotificationTypeKyc         NotificationType = "kyc"
	NotificationTypeSystem      NotificationType = "system"
)

// Notification is an append-only user-facing message tied to a transaction
// event. Produced once per state transition, never mutated afterwards except
// for the read flag.
type Notification struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	UserID        uuid.UUID        `json:"user_id" db:"user_id"`
	TransactionID *uuid.UUID       `json:"transaction_id,omitempty" db:"transaction_id"`
	Title         string           `json:"title" db:"title"`
	Message       string           `json:"message" db:"message"`
	Type          NotificationType `json:"type" db:"type"`
	IsRead        bool             `json:"is_read" db:"is_read"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// ExchangeRate is one externally maintained rate row. Rate and fee percentage
// always travel together so a quote never sees a torn read.
type ExchangeRate struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	FromCurrency  Currency        `json:"from_currency" db:"from_currency"`
	ToCurrency    Currency        `json:"to_currency" db:"to_currency"`
	Rate          decimal.Decimal `json:"rate" db:"rate"`
	FeePercentage decimal.Decimal `json:"fee_percentage" db:"fee_percentage"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
