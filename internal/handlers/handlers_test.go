package handlers_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/PKOOOO/autolock/internal/config"
	"github.com/PKOOOO/autolock/internal/models"
	"github.com/PKOOOO/autolock/internal/routes"
	"github.com/PKOOOO/autolock/internal/services"
	"github.com/PKOOOO/autolock/internal/storage"
)

const webhookSecret = "whsec_test"

func newTestApp() (*fiber.App, storage.Store) {
	cfg := &config.Config{
		GatewayBaseURL: "http://gateway.invalid",
		GatewayAPIKey:  "sk_test_123",
		WebhookSecret:  webhookSecret,
		OTPSecret:      "otp-secret",
		RatePerMinute:  5,
		UnlockRate:     50,
		PendingWindow:  30 * time.Minute,
		PaidWindow:     24 * time.Hour,
	}

	store := storage.NewMemoryStore()
	gateway := services.NewGatewayService(cfg)
	controller := services.NewLifecycleController(store, gateway, services.NewOTPIssuer(cfg.OTPSecret), cfg)

	app := fiber.New()
	routes.SetupRoutes(app, store, controller, gateway, cfg)
	return app, store
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)

	var parsed map[string]interface{}
	if len(raw) > 0 {
		assert.NoError(t, json.Unmarshal(raw, &parsed))
	}
	return resp.StatusCode, parsed
}

func signBody(body string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// seedPendingSession plants a session awaiting its webhook, the state a
// prepay or retrieve call leaves behind.
func seedPendingSession(t *testing.T, store storage.Store, lockerID, reference string) *models.Session {
	now := time.Now()
	session, err := store.CreateSession(&models.Session{
		SessionID:         uuid.NewString(),
		LockerID:          lockerID,
		Phone:             "+254712345678",
		Status:            models.StatusPendingPayment,
		PaymentReference:  reference,
		AmountInitial:     50,
		StartedAt:         now,
		ChargeRequestedAt: &now,
	})
	assert.NoError(t, err)
	return session
}

func TestStartStoreEndpoint(t *testing.T) {
	app, _ := newTestApp()

	status, body := doJSON(t, app, http.MethodPost, "/api/sessions/store", `{"locker_id":"A1"}`, nil)
	assert.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["session_id"])

	// Occupied locker conflicts.
	status, body = doJSON(t, app, http.MethodPost, "/api/sessions/store", `{"locker_id":"A1"}`, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, body["error"])

	// Missing locker is a bad request.
	status, _ = doJSON(t, app, http.MethodPost, "/api/sessions/store", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEndEndpoint(t *testing.T) {
	app, _ := newTestApp()

	status, _ := doJSON(t, app, http.MethodPost, "/api/sessions/store", `{"locker_id":"A1"}`, nil)
	assert.Equal(t, http.StatusCreated, status)

	status, body := doJSON(t, app, http.MethodPost, "/api/sessions/end", `{"locker_id":"A1"}`, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["minutes_used"])
	assert.Equal(t, float64(5), body["amount_charged"])
	assert.Equal(t, services.ChargeStatusNone, body["charge_status"])

	// Nothing left to end.
	status, _ = doJSON(t, app, http.MethodPost, "/api/sessions/end", `{"locker_id":"A1"}`, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app, store := newTestApp()
	session := seedPendingSession(t, store, "B2", "LKR-sig")
	payload := `{"event":"charge.success","data":{"reference":"LKR-sig"}}`

	status, _ := doJSON(t, app, http.MethodPost, "/webhook/payments", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, app, http.MethodPost, "/webhook/payments", payload,
		map[string]string{"X-Gateway-Signature": "deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, status)

	// Zero mutation on rejected payloads.
	stored, err := store.GetSession(session.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, stored.Status)
	assert.Nil(t, stored.OTPPlain)
}

func TestWebhookAppliesAndAcknowledgesDuplicates(t *testing.T) {
	app, store := newTestApp()
	session := seedPendingSession(t, store, "B2", "LKR-dup")
	payload := `{"event":"charge.success","data":{"reference":"LKR-dup"}}`
	headers := map[string]string{"X-Gateway-Signature": signBody(payload)}

	status, body := doJSON(t, app, http.MethodPost, "/webhook/payments", payload, headers)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	stored, err := store.GetSession(session.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPaid, stored.Status)
	assert.NotNil(t, stored.OTPPlain)
	firstHash := stored.OTPHash

	// The duplicate is a no-op but is still acknowledged.
	status, body = doJSON(t, app, http.MethodPost, "/webhook/payments", payload, headers)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	stored, _ = store.GetSession(session.SessionID)
	assert.Equal(t, firstHash, stored.OTPHash)
}

func TestWebhookAcknowledgesUnmatchedAndUnknownEvents(t *testing.T) {
	app, _ := newTestApp()

	payload := `{"event":"charge.success","data":{"reference":"LKR-unknown"}}`
	status, _ := doJSON(t, app, http.MethodPost, "/webhook/payments", payload,
		map[string]string{"X-Gateway-Signature": signBody(payload)})
	assert.Equal(t, http.StatusOK, status)

	payload = `{"event":"transfer.success","data":{"reference":"x"}}`
	status, _ = doJSON(t, app, http.MethodPost, "/webhook/payments", payload,
		map[string]string{"X-Gateway-Signature": signBody(payload)})
	assert.Equal(t, http.StatusOK, status)
}

func TestPollEndpointDeliversOnce(t *testing.T) {
	app, store := newTestApp()
	seedPendingSession(t, store, "B2", "LKR-poll")

	// Not paid yet.
	status, body := doJSON(t, app, http.MethodGet, "/api/lockers/B2/poll", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["paid"])

	payload := `{"event":"charge.success","data":{"reference":"LKR-poll"}}`
	status, _ = doJSON(t, app, http.MethodPost, "/webhook/payments", payload,
		map[string]string{"X-Gateway-Signature": signBody(payload)})
	assert.Equal(t, http.StatusOK, status)

	// First poll after settlement carries the code.
	status, body = doJSON(t, app, http.MethodGet, "/api/lockers/B2/poll", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["paid"])
	assert.Len(t, body["otp"], 6)

	// Immediately after, the code is gone.
	status, body = doJSON(t, app, http.MethodGet, "/api/lockers/B2/poll", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["paid"])

	// Unknown locker.
	status, _ = doJSON(t, app, http.MethodGet, "/api/lockers/Z9/poll", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDashboardProjection(t *testing.T) {
	app, store := newTestApp()

	status, _ := doJSON(t, app, http.MethodPost, "/api/sessions/store", `{"locker_id":"A1"}`, nil)
	assert.Equal(t, http.StatusCreated, status)
	seedPendingSession(t, store, "B2", "LKR-dash")

	status, body := doJSON(t, app, http.MethodGet, "/api/dashboard/sessions", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["count"])

	sessions := body["sessions"].([]interface{})
	assert.Len(t, sessions, 2)
	for _, raw := range sessions {
		view := raw.(map[string]interface{})
		assert.NotEmpty(t, view["session_id"])
		assert.NotEmpty(t, view["status"])
		// Fresh sessions bill the one-minute floor.
		assert.Equal(t, float64(1), view["elapsed_minutes"])
		assert.Equal(t, float64(5), view["running_cost"])
	}
}
