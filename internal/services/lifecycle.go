package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/PKOOOO/autolock/internal/config"
	"github.com/PKOOOO/autolock/internal/models"
	"github.com/PKOOOO/autolock/internal/storage"
	"github.com/PKOOOO/autolock/internal/utils"
)

// ErrGatewayRejected means the charge could not even be initiated.
var ErrGatewayRejected = errors.New("gateway rejected charge")

// Closing-charge outcomes reported by End. A failed closing charge never
// blocks release of the locker; it is flagged for out-of-band
// reconciliation.
const (
	ChargeStatusSent   = "sent"
	ChargeStatusFailed = "failed"
	ChargeStatusNone   = "none"
)

// EndResult is what the end operation reports to the caller.
type EndResult struct {
	SessionID     string `json:"session_id"`
	MinutesUsed   int64  `json:"minutes_used"`
	AmountCharged int64  `json:"amount_charged"`
	ChargeStatus  string `json:"charge_status"`
}

// LifecycleController owns the session state machine. All transitions go
// through here, and every state-advancing write is a conditional update in
// the store so concurrent requests for the same locker are resolved by the
// storage engine, not by in-process locks.
type LifecycleController struct {
	store   storage.Store
	gateway ChargeInitiator
	otp     *OTPIssuer
	cfg     *config.Config
	now     func() time.Time
}

// NewLifecycleController creates the controller with its collaborators
// injected. The config is threaded in here so the state machine needs no
// environment at request time.
func NewLifecycleController(store storage.Store, gateway ChargeInitiator, otp *OTPIssuer, cfg *config.Config) *LifecycleController {
	return &LifecycleController{
		store:   store,
		gateway: gateway,
		otp:     otp,
		cfg:     cfg,
		now:     time.Now,
	}
}

// StartStore opens a store-first session: goods go in now, payment happens
// at retrieval or end. Returns storage.ErrLockerOccupied if the locker has
// an open session.
func (lc *LifecycleController) StartStore(lockerID string) (*models.Session, error) {
	lc.reclaimStale()

	session := &models.Session{
		SessionID: uuid.NewString(),
		LockerID:  lockerID,
		Status:    models.StatusActive,
		StartedAt: lc.now(),
	}
	return lc.store.CreateSession(session)
}

// StartPrepay opens a pay-first session: the flat charge is requested
// immediately and the session waits in pending_payment for the webhook. If
// the charge cannot be initiated the session is marked failed right away so
// the locker is never stranded behind a charge that does not exist.
func (lc *LifecycleController) StartPrepay(lockerID, phone string) (*models.Session, error) {
	lc.reclaimStale()

	now := lc.now()
	session := &models.Session{
		SessionID:         uuid.NewString(),
		LockerID:          lockerID,
		Phone:             phone,
		Status:            models.StatusPendingPayment,
		PaymentReference:  utils.NewPaymentReference(),
		AmountInitial:     lc.cfg.UnlockRate,
		StartedAt:         now,
		ChargeRequestedAt: &now,
	}
	created, err := lc.store.CreateSession(session)
	if err != nil {
		return nil, err
	}

	outcome, err := lc.gateway.InitiateCharge(phone, created.AmountInitial, created.PaymentReference)
	if err != nil || outcome == OutcomeRejected {
		if err != nil {
			log.Printf("Charge initiation failed for session %s: %v", created.SessionID, err)
		}
		if _, ferr := lc.store.FailSession(created.SessionID); ferr != nil {
			log.Printf("Failed to mark session %s failed: %v", created.SessionID, ferr)
		}
		return nil, ErrGatewayRejected
	}
	return created, nil
}

// Retrieve starts the pay-to-unlock flow on an occupied locker: a flat
// charge is initiated for the supplied phone and the session moves to
// pending_payment. The charge record is written before the charge is
// initiated so a fast webhook always finds a matching reference.
func (lc *LifecycleController) Retrieve(lockerID, phone string) (*models.Session, error) {
	lc.reclaimStale()

	session, err := lc.store.GetOpenSessionByLocker(lockerID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusActive {
		// A charge is already in flight or settled for this locker.
		return nil, storage.ErrLockerOccupied
	}

	reference := utils.NewPaymentReference()
	ok, err := lc.store.SetRetrievalCharge(session.SessionID, reference, phone, lc.cfg.UnlockRate, lc.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another retrieve won the race.
		return nil, storage.ErrLockerOccupied
	}

	outcome, err := lc.gateway.InitiateCharge(phone, lc.cfg.UnlockRate, reference)
	if err != nil || outcome == OutcomeRejected {
		if err != nil {
			log.Printf("Retrieval charge failed for session %s: %v", session.SessionID, err)
		}
		// The session stays active with the goods inside; the caller can
		// retry with a fresh charge.
		return nil, ErrGatewayRejected
	}

	// If the webhook already advanced the session past active this finds
	// zero rows, which is fine.
	if _, err := lc.store.MarkSessionPending(session.SessionID); err != nil {
		return nil, err
	}
	return lc.store.GetSession(session.SessionID)
}

// End closes the open session on a locker, billing elapsed time. The
// session reaches ended regardless of the closing charge's fate; a failed
// charge is reported in ChargeStatus for reconciliation, never retried
// here.
func (lc *LifecycleController) End(lockerID string) (*EndResult, error) {
	session, err := lc.store.GetOpenSessionByLocker(lockerID)
	if err != nil {
		return nil, err
	}

	endedAt := lc.now()
	minutes := BillableMinutes(endedAt.Sub(session.StartedAt))
	amount := minutes * lc.cfg.RatePerMinute

	reference := ""
	if session.Phone != "" {
		reference = utils.NewPaymentReference()
	}

	ok, err := lc.store.EndSession(session.SessionID, endedAt, amount, reference)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Someone else ended it first.
		return nil, storage.ErrSessionNotFound
	}

	chargeStatus := ChargeStatusNone
	if reference != "" {
		outcome, err := lc.gateway.InitiateCharge(session.Phone, amount, reference)
		if err != nil || outcome == OutcomeRejected {
			if err != nil {
				log.Printf("Closing charge failed for session %s: %v", session.SessionID, err)
			}
			chargeStatus = ChargeStatusFailed
		} else {
			chargeStatus = ChargeStatusSent
		}
	}

	return &EndResult{
		SessionID:     session.SessionID,
		MinutesUsed:   minutes,
		AmountCharged: amount,
		ChargeStatus:  chargeStatus,
	}, nil
}

// HandleChargeSuccess applies a settled charge: the matching session moves
// to paid and a fresh unlock code is minted. Returns false when the event
// is a duplicate or matches no pending session; callers acknowledge either
// way.
func (lc *LifecycleController) HandleChargeSuccess(reference string) (bool, error) {
	code, err := lc.otp.Generate()
	if err != nil {
		return false, fmt.Errorf("failed to generate OTP: %w", err)
	}

	ok, err := lc.store.MarkSessionPaid(reference, lc.otp.Hash(code), code)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Printf("Ignoring charge.success for reference %s: no pending session", reference)
	}
	return ok, nil
}

// Poll is the device-facing check for unlock authorization. The code is
// handed out exactly once: the conditional delivery update flips
// otp_delivered and nulls the plaintext atomically, so of N concurrent
// polls only one wins and the rest see paid=false.
func (lc *LifecycleController) Poll(lockerID string) (bool, string, error) {
	session, err := lc.store.GetOpenSessionByLocker(lockerID)
	if err != nil {
		return false, "", err
	}

	if session.Status != models.StatusPaid || session.OTPDelivered || session.OTPPlain == nil {
		return false, "", nil
	}

	code := *session.OTPPlain
	ok, err := lc.store.DeliverOTP(session.SessionID)
	if err != nil {
		return false, "", err
	}
	if !ok {
		// Lost the race to another poller.
		return false, "", nil
	}
	return true, code, nil
}

// ReclaimStale expires abandoned sessions so their lockers become usable
// again: pending_payment sessions whose charge never settled within the
// pending window, and active/paid sessions past the long abandonment
// window.
func (lc *LifecycleController) ReclaimStale() (int64, error) {
	now := lc.now()
	return lc.store.ExpireStaleSessions(now.Add(-lc.cfg.PendingWindow), now.Add(-lc.cfg.PaidWindow))
}

// reclaimStale runs before every start guard; errors are logged, not
// propagated, since reclaim is housekeeping for the request at hand.
func (lc *LifecycleController) reclaimStale() {
	if _, err := lc.ReclaimStale(); err != nil {
		log.Printf("Failed to reclaim stale sessions: %v", err)
	}
}

// BillableMinutes rounds elapsed time up to whole minutes with a floor of
// one minute. Partial minutes bill as full minutes.
func BillableMinutes(elapsed time.Duration) int64 {
	if elapsed <= time.Minute {
		return 1
	}
	minutes := int64(elapsed / time.Minute)
	if elapsed%time.Minute != 0 {
		minutes++
	}
	return minutes
}
