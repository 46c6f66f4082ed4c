package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/PKOOOO/autolock/internal/services"
)

// WebhookHandler processes gateway payment events. Authenticity is checked
// by middleware before this handler runs; from here on every outcome is
// acknowledged with 200 so the gateway's retry policy never storms us for
// events we have already handled or cannot match.
type WebhookHandler struct {
	controller *services.LifecycleController
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(controller *services.LifecycleController) *WebhookHandler {
	return &WebhookHandler{controller: controller}
}

// HandlePaymentWebhook applies a gateway event to the session it targets.
func (h *WebhookHandler) HandlePaymentWebhook(c *fiber.Ctx) error {
	event, err := services.ParseWebhookEvent(c.Body())
	if err != nil {
		log.Printf("Ignoring unparseable webhook: %v", err)
		return c.JSON(fiber.Map{"status": "ok"})
	}

	switch event.Event {
	case "charge.success":
		applied, err := h.controller.HandleChargeSuccess(event.Data.Reference)
		if err != nil {
			// Internal fault: log for the operator but still acknowledge,
			// a retry storm would not fix the database.
			log.Printf("Failed to process charge.success for %s: %v", event.Data.Reference, err)
		} else if applied {
			log.Printf("Charge settled for reference %s", event.Data.Reference)
		}
	case "charge.failed":
		log.Printf("Charge failed at gateway for reference %s", event.Data.Reference)
	default:
		log.Printf("Unhandled webhook event: %s", event.Event)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
