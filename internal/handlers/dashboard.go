package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/PKOOOO/autolock/internal/config"
	"github.com/PKOOOO/autolock/internal/models"
	"github.com/PKOOOO/autolock/internal/services"
	"github.com/PKOOOO/autolock/internal/storage"
)

// DashboardHandler serves the read-only session projection. No write path.
type DashboardHandler struct {
	store storage.Store
	cfg   *config.Config
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(store storage.Store, cfg *config.Config) *DashboardHandler {
	return &DashboardHandler{store: store, cfg: cfg}
}

type sessionView struct {
	SessionID      string     `json:"session_id"`
	LockerID       string     `json:"locker_id"`
	Phone          string     `json:"phone,omitempty"`
	Status         string     `json:"status"`
	OTPDelivered   bool       `json:"otp_delivered"`
	AmountInitial  int64      `json:"amount_initial"`
	AmountFinal    int64      `json:"amount_final"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	ElapsedMinutes int64      `json:"elapsed_minutes"`
	RunningCost    int64      `json:"running_cost"`
}

// ListSessions returns all sessions with derived billing fields. Open
// sessions accrue against the clock; ended sessions are frozen at ended_at.
func (h *DashboardHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.store.ListSessions()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	now := time.Now()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		until := now
		if s.EndedAt != nil {
			until = *s.EndedAt
		}
		minutes := int64(0)
		if s.Status != models.StatusFailed {
			minutes = services.BillableMinutes(until.Sub(s.StartedAt))
		}

		views = append(views, sessionView{
			SessionID:      s.SessionID,
			LockerID:       s.LockerID,
			Phone:          s.Phone,
			Status:         s.Status,
			OTPDelivered:   s.OTPDelivered,
			AmountInitial:  s.AmountInitial,
			AmountFinal:    s.AmountFinal,
			StartedAt:      s.StartedAt,
			EndedAt:        s.EndedAt,
			ElapsedMinutes: minutes,
			RunningCost:    minutes * h.cfg.RatePerMinute,
		})
	}

	return c.JSON(fiber.Map{
		"sessions": views,
		"count":    len(views),
	})
}
