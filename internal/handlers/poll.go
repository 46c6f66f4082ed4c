package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/PKOOOO/autolock/internal/services"
	"github.com/PKOOOO/autolock/internal/storage"
)

// DeviceHandler handles the embedded device's polling endpoint.
type DeviceHandler struct {
	controller *services.LifecycleController
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(controller *services.LifecycleController) *DeviceHandler {
	return &DeviceHandler{controller: controller}
}

// Poll reports unlock authorization for a locker. The unlock code appears
// in exactly one response per issued code; every other poll, including
// concurrent ones, gets paid=false.
func (h *DeviceHandler) Poll(c *fiber.Ctx) error {
	lockerID := c.Params("lockerID")
	if lockerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Locker ID is required",
		})
	}

	paid, code, err := h.controller.Poll(lockerID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No open session for this locker",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to poll session",
		})
	}

	if !paid {
		return c.JSON(fiber.Map{"paid": false})
	}
	return c.JSON(fiber.Map{
		"paid": true,
		"otp":  code,
	})
}
