package authsdk

import (
	"context"
	"net/http"
)

// Session performs authenticated calls with a bearer token. Tokens are not
// refreshed; when one expires the caller logs in again.
type Session struct {
	client *Client
	token  string
}

// Token returns the bearer token backing this session.
func (s *Session) Token() string { return s.token }

// Me fetches the account's public profile.
func (s *Session) Me(ctx context.Context) (*ProfileResponse, error) {
	var out ProfileResponse
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/auth/me", s.token, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword rotates the account password.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	req := ChangePasswordRequest{CurrentPassword: current, NewPassword: next}
	return s.client.doJSON(ctx, http.MethodPost, "/v1/auth/password", s.token, req, nil, http.StatusNoContent)
}

// SetupMFA starts TOTP enrollment and returns the provisioning material.
func (s *Session) SetupMFA(ctx context.Context) (*MFASetupResponse, error) {
	var out MFASetupResponse
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/mfa/setup", s.token, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMFA confirms enrollment with a TOTP code and returns the one-time
// recovery codes.
func (s *Session) VerifyMFA(ctx context.Context, code string) (*RecoveryCodesResponse, error) {
	var out RecoveryCodesResponse
	req := MFAVerifyRequest{Code: code}
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/mfa/verify", s.token, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableMFA turns MFA off after password re-authentication.
func (s *Session) DisableMFA(ctx context.Context, password string) error {
	req := MFADisableRequest{Password: password}
	return s.client.doJSON(ctx, http.MethodPost, "/v1/mfa/disable", s.token, req, nil, http.StatusNoContent)
}
