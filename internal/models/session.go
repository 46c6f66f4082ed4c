package models

import (
	"time"

	"gorm.io/gorm"
)

// Session statuses. A locker is considered occupied while its session is in
// one of the open statuses; the terminal statuses free it.
const (
	StatusActive         = "active"
	StatusPendingPayment = "pending_payment"
	StatusPaid           = "paid"
	StatusEnded          = "ended"
	StatusFailed         = "failed"
	StatusExpired        = "expired"
)

// OpenStatuses are the statuses during which a locker cannot be reused.
var OpenStatuses = []string{StatusActive, StatusPendingPayment, StatusPaid}

// Session records one locker occupancy episode. Rows are never deleted;
// terminal sessions remain as the audit trail.
type Session struct {
	gorm.Model
	SessionID string `json:"session_id" gorm:"uniqueIndex;not null"`
	LockerID  string `json:"locker_id" gorm:"index;not null"`
	Phone     string `json:"phone"` // empty until a payment flow supplies it
	Status    string `json:"status" gorm:"index;not null"`

	// OTPHash is the permanent audit record of the issued unlock code.
	// OTPPlain exists only between issuance and first delivery; nulling it
	// in the delivery update is the exactly-once guard, not cleanup.
	OTPHash      string  `json:"-"`
	OTPPlain     *string `json:"-"`
	OTPDelivered bool    `json:"otp_delivered" gorm:"default:false"`

	// PaymentReference correlates the session with exactly one gateway
	// charge attempt; a fresh reference is minted for every charge.
	PaymentReference string `json:"payment_reference" gorm:"index"`

	// ChargeRequestedAt is when the open charge was initiated. The pending
	// staleness window runs from here, not from started_at: goods may sit
	// for hours before a retrieval charge is requested.
	ChargeRequestedAt *time.Time `json:"charge_requested_at"`

	// Amounts are integer currency subunits (KES).
	AmountInitial int64 `json:"amount_initial"`
	AmountFinal   int64 `json:"amount_final"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// IsOpen reports whether the session still occupies its locker.
func (s *Session) IsOpen() bool {
	switch s.Status {
	case StatusActive, StatusPendingPayment, StatusPaid:
		return true
	}
	return false
}
