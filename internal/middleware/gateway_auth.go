package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/PKOOOO/autolock/internal/services"
)

// ValidateGatewaySignature validates that a webhook request really came
// from the payment gateway. The HMAC runs over the exact raw body bytes,
// before any parsing; a missing or mismatched signature is rejected and
// never reaches the handler.
func ValidateGatewaySignature(gateway *services.GatewayService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Gateway-Signature")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing gateway signature",
			})
		}

		if !gateway.VerifyWebhook(c.Body(), signature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}
