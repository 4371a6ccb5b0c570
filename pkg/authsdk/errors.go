package authsdk

import (
	"fmt"
	"net/http"

	"github.com/siloamhealth/siloam-auth/pkg/httpx"
)

// Error codes returned in the "error" field of error responses.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeAccountLocked       = "account_locked"
	ErrorCodeAccountDeactivated  = "account_deactivated"
	ErrorCodeDuplicateEmail      = "duplicate_email"
	ErrorCodeWeakPassword        = "weak_password"
	ErrorCodePasswordReused      = "password_reused"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeInvalidPendingToken = "invalid_pending_token"
	ErrorCodeInvalidMFACode      = "invalid_mfa_code"
	ErrorCodeMFAAlreadyEnabled   = "mfa_already_enabled"
	ErrorCodeMFANotEnabled       = "mfa_not_enabled"
	ErrorCodeMFANotInitiated     = "mfa_not_initiated"
	ErrorCodeServerError         = "server_error"
)

// APIError is the wire-level error shape. It implements the error interface
// so the SDK client can return decoded service errors directly.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`

	// Details carries per-field information when present, e.g. the
	// individual password policy violations.
	Details map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes the error as a JSON response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, e.StatusCode, e)
}

// NewAPIError builds an APIError with the given status and code.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

// Predefined errors for the common handler outcomes.
var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "malformed or missing request parameters",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid email or password",
	}

	ErrAccountDeactivated = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeAccountDeactivated,
		Description: "account is deactivated",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "invalid or missing access token",
	}

	ErrInvalidPendingToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidPendingToken,
		Description: "invalid or expired MFA pending token",
	}

	ErrInvalidMFACode = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidMFACode,
		Description: "invalid MFA code",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// NewAccountLockedError carries the remaining lock time so clients can show
// a countdown.
func NewAccountLockedError(minutesRemaining int) *APIError {
	return &APIError{
		StatusCode:  http.StatusLocked,
		Code:        ErrorCodeAccountLocked,
		Description: fmt.Sprintf("account is locked, try again in %d minutes", minutesRemaining),
		Details:     map[string]any{"minutes_remaining": minutesRemaining},
	}
}

// NewWeakPasswordError carries the individual policy violations.
func NewWeakPasswordError(violations []string) *APIError {
	return &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWeakPassword,
		Description: "password does not meet the security policy",
		Details:     map[string]any{"violations": violations},
	}
}
