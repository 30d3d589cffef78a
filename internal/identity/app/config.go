package app

import (
	"os"
	"strconv"
	"time"

	"github.com/nexstaff/identity/pkg/jwtx"
)

type Config struct {
	Issuer    string // Required: issuer claim for tokens
	JWTSecret string // Required: HMAC signing secret (min 32 bytes)

	TenantID    string // Default tenant applied to registrations without one
	PlatformURL string // Base URL embedded in emailed links

	RequireEmailVerification bool // Gate login and registration on a verified email
	PasswordMinLength        int  // Password policy floor (default: 8)
	BcryptCost               int  // bcrypt cost (default: hasher default)
	MaxLoginAttempts         int  // Failed-password lockout threshold

	AccessTTL  time.Duration // Access token lifetime (default: 24h)
	RefreshTTL time.Duration // Refresh token lifetime (default: 30d)
	TempTTL    time.Duration // MFA temp token lifetime (default: 5m)
	VerifyTTL  time.Duration // Email verification token lifetime (default: 24h)
	ResetTTL   time.Duration // Password reset token lifetime (default: 1h)

	DatabaseFile         string        // Path to SQLite database file (default: ./identity.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:    getEnvOrDefault("IDENTITY_ISSUER", "nexstaff-identity"),
		JWTSecret: os.Getenv("IDENTITY_JWT_SECRET"),

		TenantID:    os.Getenv("IDENTITY_TENANT_ID"),
		PlatformURL: getEnvOrDefault("IDENTITY_PLATFORM_URL", "http://localhost:3000"),

		RequireEmailVerification: getEnvBoolOrDefault("IDENTITY_REQUIRE_VERIFICATION", true),
		PasswordMinLength:        getEnvIntOrDefault("IDENTITY_PASSWORD_MIN_LENGTH", 8),
		BcryptCost:               getEnvIntOrDefault("IDENTITY_BCRYPT_COST", 0),
		MaxLoginAttempts:         getEnvIntOrDefault("IDENTITY_MAX_LOGIN_ATTEMPTS", 10),

		AccessTTL:  getEnvDurationOrDefault("IDENTITY_ACCESS_TTL", jwtx.DefaultAccessTTL),
		RefreshTTL: getEnvDurationOrDefault("IDENTITY_REFRESH_TTL", jwtx.DefaultRefreshTTL),
		TempTTL:    getEnvDurationOrDefault("IDENTITY_TEMP_TTL", jwtx.DefaultTempTTL),
		VerifyTTL:  getEnvDurationOrDefault("IDENTITY_VERIFY_TTL", jwtx.DefaultVerifyTTL),
		ResetTTL:   getEnvDurationOrDefault("IDENTITY_RESET_TTL", jwtx.DefaultResetTTL),

		DatabaseFile:         getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
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

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
