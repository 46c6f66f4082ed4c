package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/PKOOOO/autolock/internal/models"
)

// MemoryStore holds all sessions in memory. Used for tests and local runs
// with USE_MEMORY_STORE=true. The single mutex gives it the same atomic
// check-and-set semantics the database store gets from row-level updates.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session // keyed by SessionID
	nextID   uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
	}
}

// copySession returns a detached copy so callers never share the stored row.
func copySession(s *models.Session) *models.Session {
	cp := *s
	if s.OTPPlain != nil {
		plain := *s.OTPPlain
		cp.OTPPlain = &plain
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		cp.EndedAt = &ended
	}
	if s.ChargeRequestedAt != nil {
		requested := *s.ChargeRequestedAt
		cp.ChargeRequestedAt = &requested
	}
	return &cp
}

func (m *MemoryStore) CreateSession(session *models.Session) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.LockerID == session.LockerID && s.IsOpen() {
			return nil, ErrLockerOccupied
		}
	}

	m.nextID++
	session.ID = m.nextID
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt

	m.sessions[session.SessionID] = copySession(session)
	return copySession(session), nil
}

func (m *MemoryStore) GetSession(sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(s), nil
}

func (m *MemoryStore) GetOpenSessionByLocker(lockerID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.LockerID == lockerID && s.IsOpen() {
			return copySession(s), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) ListSessions() ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) MarkSessionPaid(reference, otpHash, otpPlain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.PaymentReference != reference {
			continue
		}
		if s.Status != models.StatusPendingPayment && s.Status != models.StatusActive {
			return false, nil
		}
		plain := otpPlain
		s.Status = models.StatusPaid
		s.OTPHash = otpHash
		s.OTPPlain = &plain
		s.OTPDelivered = false
		s.UpdatedAt = time.Now()
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) DeliverOTP(sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.Status != models.StatusPaid || s.OTPDelivered {
		return false, nil
	}
	s.OTPDelivered = true
	s.OTPPlain = nil
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) SetRetrievalCharge(sessionID, reference, phone string, amount int64, requestedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.Status != models.StatusActive {
		return false, nil
	}
	requested := requestedAt
	s.PaymentReference = reference
	s.Phone = phone
	s.AmountInitial = amount
	s.ChargeRequestedAt = &requested
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) MarkSessionPending(sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.Status != models.StatusActive {
		return false, nil
	}
	s.Status = models.StatusPendingPayment
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) EndSession(sessionID string, endedAt time.Time, amountFinal int64, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || !s.IsOpen() {
		return false, nil
	}
	ended := endedAt
	s.Status = models.StatusEnded
	s.EndedAt = &ended
	s.AmountFinal = amountFinal
	if reference != "" {
		s.PaymentReference = reference
	}
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) FailSession(sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || !s.IsOpen() {
		return false, nil
	}
	s.Status = models.StatusFailed
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) ExpireStaleSessions(pendingBefore, openBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.sessions {
		switch s.Status {
		case models.StatusPendingPayment:
			// The pending window runs from when the charge was requested,
			// not from when the goods were stored.
			requested := s.StartedAt
			if s.ChargeRequestedAt != nil {
				requested = *s.ChargeRequestedAt
			}
			if requested.Before(pendingBefore) {
				s.Status = models.StatusExpired
				s.UpdatedAt = time.Now()
				n++
			}
		case models.StatusActive, models.StatusPaid:
			if s.StartedAt.Before(openBefore) {
				s.Status = models.StatusExpired
				s.UpdatedAt = time.Now()
				n++
			}
		}
	}
	return n, nil
}
