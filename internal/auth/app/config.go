package app

import (
	"os"
	"strconv"
	"time"

	"github.com/siloamhealth/siloam-auth/pkg/jwtx"
)

type Config struct {
	Issuer string // Issuer claim for session and pending tokens

	JWTSecret     string // Optional: HS256 signing secret (hex or raw, >= 32 bytes)
	JWTSecretFile string // Optional: path to signing secret file (default: ./jwt_secret)
	EncryptionKey string // Optional: hex AES-256 key for sealing MFA material; unset means passthrough
	PepperFile    string // Optional: path to password pepper file (default: ./pepper)
	DatabaseFile  string // Optional: path to SQLite database file (default: ./auth.db)

	SessionTTL           time.Duration // Session token lifetime (default: 2h)
	AuditBufferSize      int           // Audit emitter channel buffer (default: 256)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-lock sweep interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               getEnvOrDefault("AUTH_ISSUER", "siloam-auth"),
		JWTSecret:            os.Getenv("AUTH_JWT_SECRET"),
		JWTSecretFile:        getEnvOrDefault("AUTH_JWT_SECRET_FILE", "jwt_secret"),
		EncryptionKey:        os.Getenv("AUTH_ENCRYPTION_KEY"),
		PepperFile:           getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		SessionTTL:           getEnvDurationOrDefault("AUTH_SESSION_TTL", jwtx.DefaultSessionTTL),
		AuditBufferSize:      getEnvIntOrDefault("AUDIT_BUFFER_SIZE", 256),
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

	// Accept durations ("2h", "30m") or bare integer minutes.
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
