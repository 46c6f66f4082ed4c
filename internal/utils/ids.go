package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// NewPaymentReference mints a unique reference for one gateway charge
// attempt. Every charge, including the closing charge at end, gets a fresh
// reference so webhook events and reconciliation always target a single
// attempt.
func NewPaymentReference() string {
	max := big.NewInt(999999)
	n, _ := rand.Int(rand.Reader, max)
	return fmt.Sprintf("LKR%d%06d", time.Now().Unix(), n.Int64())
}
