package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// OTPIssuer generates and hashes unlock codes. It has no notion of
// delivery; delivering the code exactly once is the lifecycle controller's
// job.
type OTPIssuer struct {
	secret string
}

// NewOTPIssuer creates an issuer whose digests are keyed with the given
// server-side secret.
func NewOTPIssuer(secret string) *OTPIssuer {
	return &OTPIssuer{secret: secret}
}

// Generate produces a cryptographically secure 6-digit unlock code.
func (o *OTPIssuer) Generate() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Hash returns the keyed digest stored as the permanent audit record of a
// code. The plaintext is authoritative for delivery, the digest for later
// verification.
func (o *OTPIssuer) Hash(code string) string {
	mac := hmac.New(sha256.New, []byte(o.secret))
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
