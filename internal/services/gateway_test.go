package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PKOOOO/autolock/internal/config"
)

func newTestGateway(baseURL string) *GatewayService {
	return NewGatewayService(&config.Config{
		GatewayBaseURL: baseURL,
		GatewayAPIKey:  "sk_test_123",
		WebhookSecret:  "whsec_test",
	})
}

func chargeServer(t *testing.T, dataStatus string, got *chargeRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charge", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": map[string]interface{}{
				"status":       dataStatus,
				"reference":    "ref",
				"display_text": "Enter your PIN on your phone",
			},
		})
	}))
}

func TestInitiateChargePendingConfirmation(t *testing.T) {
	var got chargeRequest
	srv := chargeServer(t, "pay_offline", &got)
	defer srv.Close()

	gw := newTestGateway(srv.URL)
	outcome, err := gw.InitiateCharge("0712 345-678", 50, "LKR123")
	assert.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)

	assert.Equal(t, int64(50), got.Amount)
	assert.Equal(t, "KES", got.Currency)
	assert.Equal(t, "LKR123", got.Reference)
	assert.Equal(t, "+254712345678", got.MobileMoney.Phone)
	assert.Equal(t, "mpesa", got.MobileMoney.Provider)
}

func TestInitiateChargeOutcomes(t *testing.T) {
	cases := []struct {
		dataStatus string
		want       ChargeOutcome
	}{
		{"success", OutcomeAccepted},
		{"pay_offline", OutcomePending},
		{"send_otp", OutcomePending},
		{"pending", OutcomePending},
		{"failed", OutcomeRejected},
	}
	for _, tc := range cases {
		srv := chargeServer(t, tc.dataStatus, nil)
		gw := newTestGateway(srv.URL)
		outcome, err := gw.InitiateCharge("0712345678", 50, "LKR123")
		srv.Close()
		assert.NoError(t, err)
		assert.Equal(t, tc.want, outcome, "data.status %q", tc.dataStatus)
	}
}

func TestInitiateChargeHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL)
	outcome, err := gw.InitiateCharge("0712345678", 50, "LKR123")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
}

func TestInitiateChargeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed on purpose

	gw := newTestGateway(srv.URL)
	outcome, err := gw.InitiateCharge("0712345678", 50, "LKR123")
	assert.Error(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
}

func TestInitiateChargeInvalidPhone(t *testing.T) {
	gw := newTestGateway("http://unused.invalid")
	outcome, err := gw.InitiateCharge("not-a-number", 50, "LKR123")
	assert.Error(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	gw := newTestGateway("http://unused.invalid")
	body := []byte(`{"event":"charge.success","data":{"reference":"LKR123"}}`)

	assert.True(t, gw.VerifyWebhook(body, sign("whsec_test", body)))

	// Wrong secret, missing header, malformed hex, tampered body: all invalid.
	assert.False(t, gw.VerifyWebhook(body, sign("other", body)))
	assert.False(t, gw.VerifyWebhook(body, ""))
	assert.False(t, gw.VerifyWebhook(body, "not-hex!"))
	assert.False(t, gw.VerifyWebhook([]byte(`{"event":"charge.success"} `), sign("whsec_test", body)))
}

func TestParseWebhookEvent(t *testing.T) {
	event, err := ParseWebhookEvent([]byte(`{"event":"charge.success","data":{"reference":"LKR9","status":"success","amount":50}}`))
	assert.NoError(t, err)
	assert.Equal(t, "charge.success", event.Event)
	assert.Equal(t, "LKR9", event.Data.Reference)
	assert.Equal(t, int64(50), event.Data.Amount)

	_, err = ParseWebhookEvent([]byte(`{`))
	assert.Error(t, err)
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0712345678", "+254712345678", false},
		{"0112345678", "+254112345678", false},
		{"712345678", "+254712345678", false},
		{"254712345678", "+254712345678", false},
		{"+254712345678", "+254712345678", false},
		{"0712 345 678", "+254712345678", false},
		{"(0712) 345-678", "+254712345678", false},
		{"12345", "", true},
		{"0812345678", "", true},
		{"07123456xx", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		assert.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
