package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Required: issuer claim for tokens and the metadata document

	DatabaseFile       string // Optional: path to SQLite database file (default: ./tunegate.db)
	TokenEncryptionKey string // Required: key material for sealing user credentials
	SigningKeyPath     string // Optional: PEM private key for access tokens; ephemeral if unset
	SigningKeyID       string // Optional: kid for the signing key (default: "primary")

	AppleTeamID         string // Required for catalog access: developer team id
	AppleKeyID          string // Required for catalog access: developer key id
	ApplePrivateKeyPath string // Required for catalog access: path to the .p8 key
	AppleStorefront     string // Optional: catalog storefront (default: us)

	AccessTokenTTL  time.Duration // Optional: access token lifetime (default: 1h)
	RefreshTokenTTL time.Duration // Optional: refresh token lifetime (default: 30d)
	AuthCodeTTL     time.Duration // Optional: authorization code lifetime (default: 10m)
	AuthRequestTTL  time.Duration // Optional: pending request lifetime (default: 10m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer: getEnvOrDefault("TUNEGATE_ISSUER", "http://localhost:8080"),

		DatabaseFile:       getEnvOrDefault("TUNEGATE_DATABASE_FILE", "tunegate.db"),
		TokenEncryptionKey: os.Getenv("TUNEGATE_TOKEN_ENCRYPTION_KEY"),
		SigningKeyPath:     os.Getenv("TUNEGATE_SIGNING_KEY_PATH"),
		SigningKeyID:       getEnvOrDefault("TUNEGATE_SIGNING_KEY_ID", "primary"),

		AppleTeamID:         os.Getenv("APPLE_TEAM_ID"),
		AppleKeyID:          os.Getenv("APPLE_KEY_ID"),
		ApplePrivateKeyPath: os.Getenv("APPLE_PRIVATE_KEY_PATH"),
		AppleStorefront:     getEnvOrDefault("APPLE_STOREFRONT", "us"),

		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AuthCodeTTL:     getEnvDurationOrDefault("AUTH_CODE_TTL", 10*time.Minute),
		AuthRequestTTL:  getEnvDurationOrDefault("AUTH_REQUEST_TTL", 10*time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
