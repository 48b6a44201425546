package domain

import "time"

// TransactionStatus represents transfer lifecycle states.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCapturing TransactionStatus = "capturing"
	TransactionStatusCaptured  TransactionStatus = "captured"
	TransactionStatusPayingOut TransactionStatus = "paying_out"
	TransactionStatusDelivered TransactionStatus = "delivered"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusDelivered || s == TransactionStatusFailed
}

// transitions is the full state machine. Every non-terminal state may fail;
// success only moves forward, one hop at a time.
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusCapturing, TransactionStatusFailed},
	TransactionStatusCapturing: {TransactionStatusCaptured, TransactionStatusFailed},
	TransactionStatusCaptured:  {TransactionStatusPayingOut, TransactionStatusFailed},
	TransactionStatusPayingOut: {TransactionStatusDelivered, TransactionStatusFailed},
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusUpdate carries the fields written alongside a status transition.
// Nil pointers leave the stored value untouched.
type StatusUpdate struct {
	Reason              string
	PaymentReference    *string
	PayoutReference     *string
	SettlementReference *string
	CompletedAt         *time.Time
}
