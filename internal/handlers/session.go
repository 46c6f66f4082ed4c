package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/PKOOOO/autolock/internal/services"
	"github.com/PKOOOO/autolock/internal/storage"
)

// SessionHandler handles the client-facing session operations.
type SessionHandler struct {
	controller *services.LifecycleController
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(controller *services.LifecycleController) *SessionHandler {
	return &SessionHandler{controller: controller}
}

// StartStore opens a store-first session on a free locker.
func (h *SessionHandler) StartStore(c *fiber.Ctx) error {
	var req struct {
		LockerID string `json:"locker_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.LockerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Locker ID is required",
		})
	}

	session, err := h.controller.StartStore(req.LockerID)
	if err != nil {
		if errors.Is(err, storage.ErrLockerOccupied) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Locker is already occupied",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": session.SessionID,
	})
}

// StartPrepay opens a pay-first session: the charge is requested up front
// and the payer confirms on their phone.
func (h *SessionHandler) StartPrepay(c *fiber.Ctx) error {
	var req struct {
		LockerID string `json:"locker_id"`
		Phone    string `json:"phone"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.LockerID == "" || req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Locker ID and phone are required",
		})
	}

	session, err := h.controller.StartPrepay(req.LockerID, req.Phone)
	if err != nil {
		if errors.Is(err, storage.ErrLockerOccupied) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Locker is already occupied",
			})
		}
		if errors.Is(err, services.ErrGatewayRejected) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Payment could not be initiated",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": session.SessionID,
		"message":    "Check your phone to confirm the payment",
	})
}

// Retrieve starts the pay-to-unlock flow on an occupied locker.
func (h *SessionHandler) Retrieve(c *fiber.Ctx) error {
	var req struct {
		LockerID string `json:"locker_id"`
		Phone    string `json:"phone"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.LockerID == "" || req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Locker ID and phone are required",
		})
	}

	session, err := h.controller.Retrieve(req.LockerID, req.Phone)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No open session for this locker",
			})
		}
		if errors.Is(err, storage.ErrLockerOccupied) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A payment is already in progress for this locker",
			})
		}
		if errors.Is(err, services.ErrGatewayRejected) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Payment could not be initiated",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start retrieval",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": session.SessionID,
		"message":    "Check your phone to confirm the payment",
	})
}

// End closes the open session on a locker and reports the billing outcome.
func (h *SessionHandler) End(c *fiber.Ctx) error {
	var req struct {
		LockerID string `json:"locker_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.LockerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Locker ID is required",
		})
	}

	result, err := h.controller.End(req.LockerID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No open session for this locker",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to end session",
		})
	}

	return c.JSON(result)
}
