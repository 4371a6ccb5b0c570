package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/siloamhealth/siloam-auth/internal/auth/domain"
	"github.com/siloamhealth/siloam-auth/internal/auth/service"
	"github.com/siloamhealth/siloam-auth/pkg/authsdk"
	"github.com/siloamhealth/siloam-auth/pkg/httpx"
	"github.com/siloamhealth/siloam-auth/pkg/slogx"
)

// AuthHandler handles registration, login and session endpoints.
type AuthHandler struct {
	AuthService *service.AuthService
	MFAService  *service.MFAService
}

// HandleRegister handles POST /v1/auth/register
//
//	@Summary		Register a new patient account
//	@Description	Validates the password against the security policy, creates a patient account and returns a session token. Privileged roles cannot be self-registered.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Account details"
//	@Success		201		{object}	authsdk.SessionResponse	"Session token and profile"
//	@Failure		400		{object}	authsdk.APIError		"Weak password or malformed request"
//	@Failure		409		{object}	authsdk.APIError		"Email already registered"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	session, err := h.AuthService.Register(ctx, service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, toSessionResponse(session))
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Password login
//	@Description	Runs the lockout-aware login flow. Accounts with MFA enabled receive a short-lived pending token instead of a session.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"Session token, or pending token when MFA is required"
//	@Failure		401		{object}	authsdk.APIError		"Invalid credentials"
//	@Failure		403		{object}	authsdk.APIError		"Account deactivated"
//	@Failure		423		{object}	authsdk.APIError		"Account locked"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.AuthService.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	resp := authsdk.LoginResponse{
		MFARequired:  result.MFARequired,
		PendingToken: result.PendingToken,
	}
	if result.Session != nil {
		s := toSessionResponse(*result.Session)
		resp.Session = &s
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleMFAChallenge handles POST /v1/auth/mfa/verify
//
//	@Summary		Complete a pending MFA login
//	@Description	Exchanges the pending token plus a TOTP code (or a one-time recovery code) for a full session.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAChallengeRequest	true	"Pending token and code"
//	@Success		200		{object}	authsdk.SessionResponse		"Session token and profile"
//	@Failure		401		{object}	authsdk.APIError			"Invalid pending token or MFA code"
//	@Router			/v1/auth/mfa/verify [post].
func (h *AuthHandler) HandleMFAChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.MFAChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.PendingToken == "" || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	session, err := h.MFAService.Challenge(ctx, req.PendingToken, req.Method, req.Code)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

// HandleChangePassword handles POST /v1/auth/password
//
//	@Summary		Change password
//	@Description	Re-authenticates with the current password, enforces the policy and history checks, then rotates the password.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.ChangePasswordRequest	true	"Current and new password"
//	@Success		204		"Password changed"
//	@Failure		400		{object}	authsdk.APIError	"Weak or reused password"
//	@Failure		401		{object}	authsdk.APIError	"Current password incorrect or invalid token"
//	@Router			/v1/auth/password [post].
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.AuthService.ChangePassword(ctx, accountID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /v1/auth/me
//
//	@Summary		Current account profile
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ProfileResponse	"Public profile"
//	@Failure		401	{object}	authsdk.APIError		"Invalid or missing token"
//	@Router			/v1/auth/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	profile, err := h.AuthService.GetProfile(ctx, accountID)
	if err != nil {
		log.Warn("failed to load profile", "account_id", accountID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func toProfileResponse(p domain.Profile) authsdk.ProfileResponse {
	return authsdk.ProfileResponse{
		ID:           p.ID,
		Email:        p.Email,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Role:         p.Role,
		IsMFAEnabled: p.IsMFAEnabled,
	}
}

func toSessionResponse(s domain.SessionResult) authsdk.SessionResponse {
	return authsdk.SessionResponse{
		Token:     s.Token,
		TokenType: "Bearer",
		ExpiresIn: int(s.ExpiresIn.Seconds()),
		Profile:   toProfileResponse(s.Profile),
	}
}

// writeServiceError maps service-level failures onto wire errors. Unknown
// errors log at error level and surface as 500s.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var locked *service.AccountLockedError
	var policyErr *service.PasswordPolicyError

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.As(err, &locked):
		authsdk.NewAccountLockedError(locked.MinutesRemaining).WriteError(w)
	case errors.Is(err, service.ErrAccountDeactivated):
		authsdk.ErrAccountDeactivated.WriteError(w)
	case errors.Is(err, service.ErrDuplicateEmail):
		authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeDuplicateEmail, "email is already registered").WriteError(w)
	case errors.As(err, &policyErr):
		authsdk.NewWeakPasswordError(policyErr.Violations).WriteError(w)
	case errors.Is(err, service.ErrPasswordReused):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodePasswordReused, "password was used recently").WriteError(w)
	case errors.Is(err, service.ErrInvalidCurrentPassword), errors.Is(err, service.ErrInvalidPassword):
		authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "password is incorrect").WriteError(w)
	case errors.Is(err, service.ErrInvalidRole):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "unknown account role").WriteError(w)
	case errors.Is(err, service.ErrInvalidPendingToken):
		authsdk.ErrInvalidPendingToken.WriteError(w)
	case errors.Is(err, service.ErrInvalidMFACode):
		authsdk.ErrInvalidMFACode.WriteError(w)
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeMFAAlreadyEnabled, "MFA is already enabled").WriteError(w)
	case errors.Is(err, service.ErrMFANotEnabled):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeMFANotEnabled, "MFA is not enabled").WriteError(w)
	case errors.Is(err, service.ErrMFANotInitiated):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeMFANotInitiated, "MFA setup has not been initiated").WriteError(w)
	default:
		log.Error("request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
