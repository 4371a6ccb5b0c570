package domain

import "time"

// Account roles. The auth core only records the role; authorization over
// hospital resources lives with the consuming services.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleNurse   = "nurse"
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
)

// PasswordHistoryLimit caps how many previous password hashes are retained
// per account. On rotation the oldest entry is evicted.
const PasswordHistoryLimit = 5

// Account is the user record as the security core sees it. The store owns it;
// the core reads and mutates only the security fields below.
//
// MFASecret and MFARecoveryCodes hold sealed envelopes
// (ivHex:authTagHex:cipherHex), never plaintext. Sealing happens at the
// persistence boundary, not inside field accessors, so the cryptographic
// contract stays visible and testable.
type Account struct {
	ID          string
	Email       string // unique, compared case-insensitively
	Role        string
	FirstName   string
	LastName    string
	PhoneNumber string

	PasswordHash      string // argon2id PHC encoded
	PasswordChangedAt *time.Time
	PasswordHistory   []string // most-recent-first, len <= PasswordHistoryLimit

	IsActive    bool
	IsVerified  bool
	LastLoginAt *time.Time

	LoginAttempts int
	LockUntil     *time.Time

	MFAEnabledAt     *time.Time // non-nil once a setup has been verified
	MFASecret        *string    // sealed base32 TOTP seed (nullable)
	MFARecoveryCodes []string   // sealed one-time codes, default empty

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MFAEnabled reports whether the account has completed MFA setup.
func (a Account) MFAEnabled() bool {
	return a.MFAEnabledAt != nil
}

// Locked is the lockout predicate: locked iff lock_until is set and still in
// the future.
func (a Account) Locked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// LockMinutesRemaining returns the whole minutes until the lock expires,
// rounded up. Zero when the account is not locked.
func (a Account) LockMinutesRemaining(now time.Time) int {
	if !a.Locked(now) {
		return 0
	}
	remaining := a.LockUntil.Sub(now)
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	return minutes
}

// Profile is the public shape of an account, safe to return to callers.
type Profile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	IsMFAEnabled bool   `json:"is_mfa_enabled"`
}

// PublicProfile projects an Account into its caller-visible form.
func (a Account) PublicProfile() Profile {
	return Profile{
		ID:           a.ID,
		Email:        a.Email,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Role:         a.Role,
		IsMFAEnabled: a.MFAEnabled(),
	}
}
