package config

import (
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	// Backend
	APIBaseURL     string
	RequestTimeout time.Duration

	// Country-gated pricing
	GeoLookupURL   string
	DefaultCountry string

	// Persistent state tier: Redis when an address is set, local file otherwise
	RedisAddr string
	RedisPass string
	StatePath string

	// Session upkeep
	RefreshInterval     time.Duration
	NearExpiryThreshold time.Duration
	DefaultTokenTTL     time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		APIBaseURL:     getEnv("SURELY_API_BASE_URL", "https://api.surelytips.com/api/v1"),
		RequestTimeout: getEnvDuration("SURELY_REQUEST_TIMEOUT", 30*time.Second),

		GeoLookupURL:   getEnv("SURELY_GEO_LOOKUP_URL", "https://ipapi.co/json/"),
		DefaultCountry: getEnv("SURELY_DEFAULT_COUNTRY", "NG"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisPass: getEnv("REDIS_PASS", ""),
		StatePath: getEnv("SURELY_STATE_PATH", ".surely/state.json"),

		RefreshInterval:     getEnvDuration("SURELY_REFRESH_INTERVAL", time.Minute),
		NearExpiryThreshold: getEnvDuration("SURELY_NEAR_EXPIRY_THRESHOLD", 5*time.Minute),
		DefaultTokenTTL:     getEnvDuration("SURELY_DEFAULT_TOKEN_TTL", time.Hour),
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are taken as seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
