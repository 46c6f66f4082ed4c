package storage

import (
	"errors"
	"time"

	"github.com/PKOOOO/autolock/internal/models"
)

var (
	// ErrLockerOccupied means the locker already has an open session.
	ErrLockerOccupied = errors.New("locker occupied")
	// ErrSessionNotFound means no matching session exists.
	ErrSessionNotFound = errors.New("session not found")
)

// Store defines the transactional contract the lifecycle controller relies
// on. Every state-advancing write is a conditional check-and-set whose
// predicate includes the expected pre-state; the boolean result reports
// whether this caller won the transition. A false result is not an error,
// it means another concurrent actor already advanced the row.
type Store interface {
	// CreateSession inserts a new session, enforcing that the locker has
	// no session in an open status. Returns ErrLockerOccupied otherwise.
	CreateSession(session *models.Session) (*models.Session, error)

	GetSession(sessionID string) (*models.Session, error)
	GetOpenSessionByLocker(lockerID string) (*models.Session, error)
	ListSessions() ([]*models.Session, error)

	// MarkSessionPaid applies the charge-success transition: the session
	// matching the payment reference moves to paid and receives the OTP,
	// qualified on status still being pending_payment or active. A
	// duplicate or late webhook matches zero rows.
	MarkSessionPaid(reference, otpHash, otpPlain string) (bool, error)

	// DeliverOTP flips otp_delivered false->true and nulls otp_plain in
	// the same conditional update. Exactly one concurrent caller wins.
	DeliverOTP(sessionID string) (bool, error)

	// SetRetrievalCharge records the charge attempt (reference, phone,
	// amount, request time) on a still-active session before the charge is
	// initiated.
	SetRetrievalCharge(sessionID, reference, phone string, amount int64, requestedAt time.Time) (bool, error)

	// MarkSessionPending moves an active session to pending_payment once
	// a retrieval charge has been accepted by the gateway.
	MarkSessionPending(sessionID string) (bool, error)

	// EndSession closes an open session. An empty reference leaves the
	// existing payment reference untouched.
	EndSession(sessionID string, endedAt time.Time, amountFinal int64, reference string) (bool, error)

	// FailSession marks a session whose charge could not be initiated.
	FailSession(sessionID string) (bool, error)

	// ExpireStaleSessions reclaims abandoned sessions: pending_payment
	// rows whose charge was requested before pendingBefore, and
	// active/paid rows started before openBefore. Returns the number of
	// rows reclaimed.
	ExpireStaleSessions(pendingBefore, openBefore time.Time) (int64, error)
}
