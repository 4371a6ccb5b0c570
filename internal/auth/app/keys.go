package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const hmacSecretLength = 32

// InitSigningSecret resolves the HS256 signing secret in order of
// preference: the AUTH_JWT_SECRET environment value, then the secret file,
// and finally a freshly generated secret written back to the file so tokens
// survive restarts. Hex-encoded values are decoded; anything else is used as
// raw bytes.
func InitSigningSecret(cfg Config, logger *slog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return decodeSecret(cfg.JWTSecret)
	}

	raw, err := os.ReadFile(cfg.JWTSecretFile)
	if err == nil {
		return decodeSecret(strings.TrimSpace(string(raw)))
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read signing secret file: %w", err)
	}

	secret := make([]byte, hmacSecretLength)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	if err := os.WriteFile(cfg.JWTSecretFile, []byte(hex.EncodeToString(secret)), 0o600); err != nil {
		return nil, fmt.Errorf("write signing secret file: %w", err)
	}

	logger.Info("generated new JWT signing secret", "path", cfg.JWTSecretFile)
	return secret, nil
}

func decodeSecret(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil && len(decoded) >= hmacSecretLength {
		return decoded, nil
	}
	if len(value) < hmacSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", hmacSecretLength)
	}
	return []byte(value), nil
}
