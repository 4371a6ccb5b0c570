package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/siloamhealth/siloam-auth/internal/auth/policy"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// callers cannot probe which emails exist.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrAccountDeactivated     = errors.New("account is deactivated")
	ErrDuplicateEmail         = errors.New("email is already registered")
	ErrInvalidRole            = errors.New("unknown account role")
	ErrPasswordReused         = errors.New("password was used recently, choose a different one")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrInvalidPassword        = errors.New("password is incorrect")

	ErrInvalidPendingToken = errors.New("invalid or expired MFA pending token")
	ErrInvalidMFACode      = errors.New("invalid MFA code")
	ErrMFAAlreadyEnabled   = errors.New("MFA is already enabled for this account")
	ErrMFANotEnabled       = errors.New("MFA is not enabled for this account")
	ErrMFANotInitiated     = errors.New("MFA setup has not been initiated")
)

// AccountLockedError is returned on any login attempt while the lockout
// window is active, including attempts with the correct password.
type AccountLockedError struct {
	MinutesRemaining int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked, try again in %d minutes", e.MinutesRemaining)
}

// PasswordPolicyError carries the individual rule violations so callers can
// surface them verbatim.
type PasswordPolicyError struct {
	Violations []string
	Strength   policy.Strength
}

func (e *PasswordPolicyError) Error() string {
	return "password does not meet policy: " + strings.Join(e.Violations, "; ")
}
