package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the service needs, loaded once at startup and
// passed into the controller at construction so nothing reads the
// environment at request time.
type Config struct {
	Port string

	// Database
	DBUser string
	DBPass string
	DBName string
	// InstanceConnectionName selects the Cloud SQL unix-socket DSN when
	// set; empty means local TCP.
	InstanceConnectionName string

	// Payment gateway
	GatewayBaseURL string
	GatewayAPIKey  string
	WebhookSecret  string

	// OTP hashing
	OTPSecret string

	// Billing (KES)
	RatePerMinute int64 // storage charge per started minute
	UnlockRate    int64 // flat rate for the pay-to-unlock flow

	// Staleness windows: sessions that never reach paid within
	// PendingWindow, or reach paid but never end within PaidWindow, are
	// reclaimed as expired.
	PendingWindow time.Duration
	PaidWindow    time.Duration
}

// Load reads the configuration from environment variables with development
// defaults for everything non-secret.
func Load() *Config {
	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		DBUser:                 getEnv("DB_USER", "postgres"),
		DBPass:                 os.Getenv("DB_PASS"),
		DBName:                 getEnv("DB_NAME", "autolock"),
		InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		GatewayBaseURL:         getEnv("GATEWAY_BASE_URL", "https://api.paystack.co"),
		GatewayAPIKey:          os.Getenv("GATEWAY_API_KEY"),
		WebhookSecret:          os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		OTPSecret:              os.Getenv("OTP_SECRET"),
		RatePerMinute:          getEnvInt64("RATE_PER_MINUTE", 5),
		UnlockRate:             getEnvInt64("UNLOCK_RATE", 50),
		PendingWindow:          getEnvDuration("PENDING_WINDOW", 30*time.Minute),
		PaidWindow:             getEnvDuration("PAID_WINDOW", 24*time.Hour),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
