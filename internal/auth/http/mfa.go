package http

import (
	"encoding/json"
	"net/http"

	"github.com/siloamhealth/siloam-auth/internal/auth/service"
	"github.com/siloamhealth/siloam-auth/pkg/authsdk"
	"github.com/siloamhealth/siloam-auth/pkg/httpx"
	"github.com/siloamhealth/siloam-auth/pkg/slogx"
)

// MFAHandler handles the authenticated MFA lifecycle endpoints.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleSetup handles POST /v1/mfa/setup
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a fresh TOTP seed for the account and returns the provisioning URI and manual key. MFA stays disabled until verification.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MFASetupResponse	"Provisioning material, shown once"
//	@Failure		400	{object}	authsdk.APIError			"MFA already enabled"
//	@Failure		401	{object}	authsdk.APIError			"Invalid or missing token"
//	@Router			/v1/mfa/setup [post].
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	setup, err := h.MFAService.Setup(ctx, accountID)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFASetupResponse{
		ProvisioningURI: setup.ProvisioningURI,
		ManualKey:       setup.ManualKey,
		Issuer:          setup.Issuer,
		Account:         setup.Account,
	})
}

// HandleVerify handles POST /v1/mfa/verify
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Verifies a TOTP code against the tentative seed, enables MFA and returns the one-time recovery codes.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAVerifyRequest		true	"TOTP code"
//	@Success		200		{object}	authsdk.RecoveryCodesResponse	"Recovery codes, shown once"
//	@Failure		400		{object}	authsdk.APIError				"Setup not initiated or already enabled"
//	@Failure		401		{object}	authsdk.APIError				"Invalid TOTP code or token"
//	@Router			/v1/mfa/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.MFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	codes, err := h.MFAService.Verify(ctx, accountID, req.Code)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodesResponse{RecoveryCodes: codes})
}

// HandleDisable handles POST /v1/mfa/disable
//
//	@Summary		Disable MFA
//	@Description	Re-authenticates with the account password and clears all MFA state including recovery codes.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.MFADisableRequest	true	"Account password"
//	@Success		204		"MFA disabled"
//	@Failure		400		{object}	authsdk.APIError	"MFA not enabled"
//	@Failure		401		{object}	authsdk.APIError	"Password incorrect or invalid token"
//	@Router			/v1/mfa/disable [post].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.MFADisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.MFAService.Disable(ctx, accountID, req.Password); err != nil {
		writeServiceError(w, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
