package config

import (
	"os"
	"strconv"
	"time"
)

type CreditsConfig struct {
	// Minor currency units charged per message, per channel. Used once per
	// wallet to rescale legacy currency-denominated balances.
	SMSUnitCost   int64
	EmailUnitCost int64

	// Message segmentation
	GSMSegmentLen     int
	UnicodeSegmentLen int

	// Outbound gateway
	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration
}

func LoadCreditsConfig() *CreditsConfig {
	return &CreditsConfig{
		SMSUnitCost:       getEnvAsInt64("CREDITS_SMS_UNIT_COST", 25),
		EmailUnitCost:     getEnvAsInt64("CREDITS_EMAIL_UNIT_COST", 5),
		GSMSegmentLen:     getEnvAsInt("CREDITS_GSM_SEGMENT_LEN", 160),
		UnicodeSegmentLen: getEnvAsInt("CREDITS_UNICODE_SEGMENT_LEN", 70),
		GatewayBaseURL:    getEnv("SMS_GATEWAY_BASE_URL", "https://gateway.glowdesk.io"),
		GatewayAPIKey:     getEnv("SMS_GATEWAY_API_KEY", ""),
		GatewayTimeout:    getEnvAsDuration("SMS_GATEWAY_TIMEOUT", 15*time.Second),
	}
}

// UnitCost returns the legacy per-message cost for a channel.
func (c *CreditsConfig) UnitCost(channel string) int64 {
	if channel == "EMAIL" {
		return c.EmailUnitCost
	}
	return c.SMSUnitCost
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
