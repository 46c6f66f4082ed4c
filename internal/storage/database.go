package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/PKOOOO/autolock/internal/models"
)

// DatabaseStore implements Store on PostgreSQL via GORM. Every transition
// is a single status-qualified UPDATE; RowsAffected == 0 means another
// request already advanced the row.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by the given GORM connection.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (d *DatabaseStore) CreateSession(session *models.Session) (*models.Session, error) {
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Session{}).
			Where("locker_id = ? AND status IN ?", session.LockerID, models.OpenStatuses).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrLockerOccupied
		}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (d *DatabaseStore) GetSession(sessionID string) (*models.Session, error) {
	var session models.Session
	err := d.db.Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) GetOpenSessionByLocker(lockerID string) (*models.Session, error) {
	var session models.Session
	err := d.db.Where("locker_id = ? AND status IN ?", lockerID, models.OpenStatuses).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) ListSessions() ([]*models.Session, error) {
	var sessions []*models.Session
	if err := d.db.Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (d *DatabaseStore) MarkSessionPaid(reference, otpHash, otpPlain string) (bool, error) {
	res := d.db.Model(&models.Session{}).
		Where("payment_reference = ? AND status IN ?", reference,
			[]string{models.StatusPendingPayment, models.StatusActive}).
		Updates(map[string]interface{}{
			"status":        models.StatusPaid,
			"otp_hash":      otpHash,
			"otp_plain":     otpPlain,
			"otp_delivered": false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *DatabaseStore) DeliverOTP(sessionID string) (bool, error) {
	res := d.db.Model(&models.Session{}).
		Where("session_id = ? AND status = ? AND otp_delivered = ?",
			sessionID, models.StatusPaid, false).
		Updates(map[string]interface{}{
			"otp_delivered": true,
			"otp_plain":     nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *DatabaseStore) SetRetrievalCharge(sessionID, reference, phone string, amount int64, requestedAt time.Time) (bool, error) {
	res := d.db.Model(&models.Session{}).
		Where("session_id = ? AND status = ?", sessionID, models.StatusActive).
		Updates(map[string]interface{}{
			"payment_reference":   reference,
			"phone":               phone,
			"amount_initial":      amount,
			"charge_requested_at": requestedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *DatabaseStore) MarkSessionPending(sessionID string) (bool, error) {
	res := d.db.Model(&models.Session{}).
		Where("session_id = ? AND status = ?", sessionID, models.StatusActive).
		Update("status", models.StatusPendingPayment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *DatabaseStore) EndSession(sessionID string, endedAt time.Time, amountFinal int64, reference string) (bool, error) {
	updates := map[string]interface{}{
		"status":       models.StatusEnded,
		"ended_at":     endedAt,
		"amount_final": amountFinal,
	}
	if reference != "" {
		updates["payment_reference"] = reference
	}
	res := d.db.Model(&models.Session{}).
		Where("session_id = ? AND status IN ?", sessionID, models.OpenStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *DatabaseStore) FailSession(sessionID string) (bool, error) {
	res := d.db.Model(&models.Session{}).
		Where("session_id = ? AND status IN ?", sessionID, models.OpenStatuses).
		Update("status", models.StatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *DatabaseStore) ExpireStaleSessions(pendingBefore, openBefore time.Time) (int64, error) {
	var total int64

	// The pending window runs from when the charge was requested; goods may
	// have been stored long before a retrieval charge was initiated.
	res := d.db.Model(&models.Session{}).
		Where("status = ? AND charge_requested_at < ?", models.StatusPendingPayment, pendingBefore).
		Update("status", models.StatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	total += res.RowsAffected

	res = d.db.Model(&models.Session{}).
		Where("status IN ? AND started_at < ?",
			[]string{models.StatusActive, models.StatusPaid}, openBefore).
		Update("status", models.StatusExpired)
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	return total, nil
}
