package routes

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/PKOOOO/autolock/internal/config"
	"github.com/PKOOOO/autolock/internal/handlers"
	"github.com/PKOOOO/autolock/internal/middleware"
	"github.com/PKOOOO/autolock/internal/services"
	"github.com/PKOOOO/autolock/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, controller *services.LifecycleController, gateway *services.GatewayService, cfg *config.Config) {
	sessionHandler := handlers.NewSessionHandler(controller)
	deviceHandler := handlers.NewDeviceHandler(controller)
	webhookHandler := handlers.NewWebhookHandler(controller)
	dashboardHandler := handlers.NewDashboardHandler(store, cfg)

	// API routes
	api := app.Group("/api")

	sessions := api.Group("/sessions")
	sessions.Post("/store", sessionHandler.StartStore)
	sessions.Post("/prepay", sessionHandler.StartPrepay)
	sessions.Post("/retrieve", sessionHandler.Retrieve)
	sessions.Post("/end", sessionHandler.End)

	// Device-facing poll, called on a short fixed interval
	api.Get("/lockers/:lockerID/poll", deviceHandler.Poll)

	// Dashboard read model
	api.Get("/dashboard/sessions", dashboardHandler.ListSessions)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	if os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		// Development only: skip validation behind tunnels without the
		// gateway's signing secret.
		webhooks.Post("/payments", webhookHandler.HandlePaymentWebhook)
		println("⚠️  Payment webhook validation DISABLED")
	} else {
		webhooks.Post("/payments", middleware.ValidateGatewaySignature(gateway), webhookHandler.HandlePaymentWebhook)
	}
}
