// Package audit emits the append-only security event stream. Every mutating
// auth operation produces exactly one terminal event; emission is
// fire-and-forget and never propagates failure into the caller.
package audit

import (
	"context"
	"time"
)

// Actions recorded by the security core.
const (
	ActionLogin          = "user_login"
	ActionRegister       = "user_register"
	ActionMFAChallenge   = "mfa_verification"
	ActionPasswordChange = "password_change"
	ActionMFASetup       = "mfa_setup"
	ActionMFAVerify      = "mfa_verify"
	ActionMFADisable     = "mfa_disable"
	ActionAccountLocked  = "account_locked"
	ActionUnauthorized   = "unauthorized_access"
)

// Event is an immutable audit record. Payload is sanitized before emission;
// an event never contains a plaintext password, MFA seed or recovery code.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	AccountID    string         `json:"account_id,omitempty"`
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	StatusCode   int            `json:"status_code,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// SecuritySensitive reports whether the event belongs on the alert channel in
// addition to the plain audit stream: failed logins, lockouts, MFA disables
// and unauthorized access.
func (e Event) SecuritySensitive() bool {
	switch e.Action {
	case ActionAccountLocked, ActionMFADisable, ActionUnauthorized:
		return true
	case ActionLogin, ActionMFAChallenge:
		return !e.Success
	default:
		return false
	}
}

// Sink receives emitted audit events. Implementations must tolerate being
// called from a single background goroutine.
type Sink interface {
	Write(ctx context.Context, event Event) error
}
