package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Session TTL can be overridden per-service via
// configuration; the pending-MFA TTL is deliberately short and fixed.
const (
	// DefaultSessionTTL is the default lifetime for full session tokens.
	DefaultSessionTTL = 2 * time.Hour

	// PendingMFATTL is the lifetime of the intermediate token issued after a
	// successful password check when MFA is still outstanding. Expiry is the
	// only invalidation mechanism for these tokens; they are never persisted.
	PendingMFATTL = 10 * time.Minute
)

// Claims are the assertions embedded in both session and pending-MFA tokens.
// Additive changes only, to preserve compatibility with issued tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the authenticated account.
	Email string `json:"email,omitempty"`

	// Role of the account ("patient", "doctor", "nurse", "admin", "staff").
	// Empty on pending-MFA tokens: they grant no authority yet.
	Role string `json:"role,omitempty"`

	// MFAPending marks a token that proves password success but not full
	// authentication. Consumers must reject these everywhere except the MFA
	// challenge endpoint.
	MFAPending bool `json:"mfa_pending,omitempty"`
}

// NewSessionClaims builds claims for a fully authenticated session token.
func NewSessionClaims(accountID, email, role, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email: email,
		Role:  role,
	}
}

// NewPendingMFAClaims builds the short-lived assertion issued between the
// password check and the TOTP challenge.
func NewPendingMFAClaims(accountID, email, issuer string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(PendingMFATTL)),
			ID:        NewJTI(),
		},
		Email:      email,
		MFAPending: true,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches the expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token has not expired (exp) and is not used
// before it becomes valid (nbf).
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
