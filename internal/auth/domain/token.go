package domain

import "time"

// SessionResult is returned when authentication fully succeeds.
type SessionResult struct {
	Token     string        `json:"token"`
	ExpiresIn time.Duration `json:"expires_in"` // seconds until expiry
	Profile   Profile       `json:"profile"`
}

// LoginResult is the outcome of a password login. Either Session is set, or
// MFARequired is true and PendingToken carries the short-lived assertion to
// present at the MFA challenge.
type LoginResult struct {
	MFARequired  bool           `json:"mfa_required"`
	PendingToken string         `json:"pending_token,omitempty"`
	Session      *SessionResult `json:"session,omitempty"`
}
