package authsdk

// RegisterRequest creates a new patient account. Privileged roles cannot be
// self-registered.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// LoginRequest starts a password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MFAChallengeRequest completes a pending MFA login. Method is "totp"
// (default) or "recovery_code".
type MFAChallengeRequest struct {
	PendingToken string `json:"pending_token"`
	Method       string `json:"method,omitempty"`
	Code         string `json:"code"`
}

// ChangePasswordRequest rotates the account password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// MFAVerifyRequest confirms a tentative TOTP setup.
type MFAVerifyRequest struct {
	Code string `json:"code"`
}

// MFADisableRequest turns MFA off after password re-authentication.
type MFADisableRequest struct {
	Password string `json:"password"`
}

// ProfileResponse is the public projection of an account.
type ProfileResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	IsMFAEnabled bool   `json:"is_mfa_enabled"`
}

// SessionResponse carries a fully authenticated session token.
type SessionResponse struct {
	Token     string          `json:"token"`
	TokenType string          `json:"token_type"` // always "Bearer"
	ExpiresIn int             `json:"expires_in"` // seconds
	Profile   ProfileResponse `json:"profile"`
}

// LoginResponse is the outcome of a password login. When MFARequired is
// true, Session is absent and PendingToken must be presented at the MFA
// challenge endpoint within its short lifetime.
type LoginResponse struct {
	MFARequired  bool             `json:"mfa_required"`
	PendingToken string           `json:"pending_token,omitempty"`
	Session      *SessionResponse `json:"session,omitempty"`
}

// MFASetupResponse carries provisioning material for an authenticator app.
// The manual key is shown exactly once.
type MFASetupResponse struct {
	ProvisioningURI string `json:"provisioning_uri"`
	ManualKey       string `json:"manual_key"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
}

// RecoveryCodesResponse carries the one-time recovery codes, shown exactly
// once when MFA setup completes.
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// HealthChecks reports per-dependency status on the readiness probe.
type HealthChecks struct {
	Database string `json:"database"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
