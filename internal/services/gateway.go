package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PKOOOO/autolock/internal/config"
)

// ChargeOutcome is the normalized result of a charge-initiation call.
type ChargeOutcome string

const (
	// OutcomeAccepted means the gateway settled the charge immediately.
	OutcomeAccepted ChargeOutcome = "accepted"
	// OutcomePending means the gateway is waiting for the payer to confirm
	// on their phone. The real confirmation arrives later via webhook, so
	// callers treat this as success-in-progress.
	OutcomePending ChargeOutcome = "pending_confirmation"
	// OutcomeRejected means the charge could not even be initiated.
	OutcomeRejected ChargeOutcome = "rejected"
)

// ChargeInitiator is the slice of the gateway the lifecycle controller
// needs. GatewayService implements it; tests substitute fakes.
type ChargeInitiator interface {
	InitiateCharge(phone string, amount int64, reference string) (ChargeOutcome, error)
}

// GatewayService talks to the mobile-money gateway. It never mutates
// session state; it returns outcomes for the controller to act on.
type GatewayService struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

// NewGatewayService creates a new gateway service from config.
func NewGatewayService(cfg *config.Config) *GatewayService {
	return &GatewayService{
		baseURL:       strings.TrimRight(cfg.GatewayBaseURL, "/"),
		apiKey:        cfg.GatewayAPIKey,
		webhookSecret: cfg.WebhookSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

type chargeRequest struct {
	Amount      int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Reference   string      `json:"reference"`
	MobileMoney mobileMoney `json:"mobile_money"`
}

type mobileMoney struct {
	Phone    string `json:"phone"`
	Provider string `json:"provider"`
}

type chargeResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status      string `json:"status"`
		Reference   string `json:"reference"`
		DisplayText string `json:"display_text"`
	} `json:"data"`
}

// InitiateCharge submits a mobile-money charge. A "pay_offline"/"send_otp"/
// "pending" response means the payer has been prompted on their phone and
// the charge will settle (or not) via webhook.
func (g *GatewayService) InitiateCharge(phone string, amount int64, reference string) (ChargeOutcome, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("invalid phone: %w", err)
	}

	body, err := json.Marshal(chargeRequest{
		Amount:    amount,
		Currency:  "KES",
		Reference: reference,
		MobileMoney: mobileMoney{
			Phone:    normalized,
			Provider: "mpesa",
		},
	})
	if err != nil {
		return OutcomeRejected, err
	}

	req, err := http.NewRequest(http.MethodPost, g.baseURL+"/charge", bytes.NewReader(body))
	if err != nil {
		return OutcomeRejected, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	var parsed chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return OutcomeRejected, fmt.Errorf("failed to parse gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !parsed.Status {
		log.Printf("Gateway rejected charge %s: http %d", reference, resp.StatusCode)
		return OutcomeRejected, nil
	}

	switch parsed.Data.Status {
	case "success":
		return OutcomeAccepted, nil
	case "pay_offline", "send_otp", "pending":
		return OutcomePending, nil
	default:
		log.Printf("Gateway returned unknown charge status %q for %s", parsed.Data.Status, reference)
		return OutcomeRejected, nil
	}
}

// VerifyWebhook checks the gateway signature over the exact raw request
// bytes. It must run before the body is parsed; parsing first would admit
// forged payloads that happen to re-serialize differently. A missing or
// malformed header is invalid.
func (g *GatewayService) VerifyWebhook(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// WebhookEvent is the parsed shape of a gateway webhook.
type WebhookEvent struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

// WebhookData carries the charge details of a webhook event.
type WebhookData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

// ParseWebhookEvent decodes a verified webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook: %w", err)
	}
	return &event, nil
}

// NormalizePhone canonicalizes a Kenyan mobile number to E.164 (+254...).
// Accepts 07XX/01XX local forms, bare 7XX/1XX subscriber numbers, and
// already-international 254 forms.
func NormalizePhone(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
			// separators and the leading plus are dropped
		default:
			return "", fmt.Errorf("unexpected character %q", r)
		}
	}

	n := digits.String()
	switch {
	case len(n) == 12 && strings.HasPrefix(n, "254"):
		return "+" + n, nil
	case len(n) == 10 && (strings.HasPrefix(n, "07") || strings.HasPrefix(n, "01")):
		return "+254" + n[1:], nil
	case len(n) == 9 && (strings.HasPrefix(n, "7") || strings.HasPrefix(n, "1")):
		return "+254" + n, nil
	default:
		return "", fmt.Errorf("unrecognized phone number %q", phone)
	}
}
