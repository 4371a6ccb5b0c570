package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
	"github.com/siloamhealth/siloam-auth/internal/auth/domain"
	"github.com/siloamhealth/siloam-auth/internal/auth/store"
	"github.com/siloamhealth/siloam-auth/pkg/cryptox"
	"github.com/siloamhealth/siloam-auth/pkg/jwtx"
)

const (
	recoveryCodeCount = 10
	recoveryCodeBytes = cryptox.TokenSize128

	totpPeriod = 30
	// One period of clock drift is tolerated either side of now.
	totpSkew = 1
)

// MFAService owns the TOTP lifecycle: tentative setup, verification into the
// enabled state, the login-time challenge and disablement. Seeds and recovery
// codes are sealed before they touch the store.
type MFAService struct {
	Store    store.Store
	Envelope *cryptox.Envelope
	Tokens   jwtx.Signer
	Verifier jwtx.Verifier
	Audit    *audit.Emitter

	Issuer     string
	SessionTTL time.Duration

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// Setup generates a fresh TOTP seed for the account and stores it sealed.
// MFA stays disabled until Verify succeeds; calling Setup again before then
// replaces the tentative seed.
func (s *MFAService) Setup(ctx context.Context, accountID string) (domain.MFASetupResponse, error) {
	acct, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return domain.MFASetupResponse{}, fmt.Errorf("lookup account: %w", err)
	}
	if acct.MFAEnabled() {
		return domain.MFASetupResponse{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: acct.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFASetupResponse{}, fmt.Errorf("generate TOTP key: %w", err)
	}

	sealed, err := s.Envelope.Seal(key.Secret())
	if err != nil {
		return domain.MFASetupResponse{}, fmt.Errorf("seal TOTP seed: %w", err)
	}
	if err := s.Store.Accounts().SetMFASecret(ctx, acct.ID, sealed); err != nil {
		return domain.MFASetupResponse{}, fmt.Errorf("store TOTP seed: %w", err)
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionMFASetup,
		Resource:  "mfa",
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		Success:   true,
	})
	return domain.MFASetupResponse{
		ProvisioningURI: key.URL(),
		ManualKey:       key.Secret(),
		Issuer:          s.Issuer,
		Account:         acct.Email,
	}, nil
}

// Verify checks a code against the tentative seed and, on success, enables
// MFA and returns the plaintext recovery codes. They are shown exactly once;
// only sealed copies persist.
func (s *MFAService) Verify(ctx context.Context, accountID, code string) ([]string, error) {
	now := s.now()

	acct, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if acct.MFAEnabled() {
		return nil, ErrMFAAlreadyEnabled
	}
	if acct.MFASecret == nil || *acct.MFASecret == "" {
		return nil, ErrMFANotInitiated
	}

	seed, err := s.Envelope.Open(*acct.MFASecret)
	if err != nil {
		return nil, fmt.Errorf("open TOTP seed: %w", err)
	}

	if !s.validTOTP(code, seed, now) {
		s.emit(ctx, audit.Event{
			Action:       audit.ActionMFAVerify,
			Resource:     "mfa",
			AccountID:    acct.ID,
			Email:        acct.Email,
			Role:         acct.Role,
			Success:      false,
			ErrorMessage: "invalid TOTP code",
		})
		return nil, ErrInvalidMFACode
	}

	plaintext := make([]string, recoveryCodeCount)
	sealed := make([]string, recoveryCodeCount)
	for i := range plaintext {
		rc, err := cryptox.GenerateToken(recoveryCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("generate recovery code: %w", err)
		}
		enc, err := s.Envelope.Seal(rc)
		if err != nil {
			return nil, fmt.Errorf("seal recovery code: %w", err)
		}
		plaintext[i] = rc
		sealed[i] = enc
	}

	if err := s.Store.Accounts().EnableMFA(ctx, acct.ID, sealed, now); err != nil {
		return nil, fmt.Errorf("enable MFA: %w", err)
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionMFAVerify,
		Resource:  "mfa",
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		Success:   true,
	})
	return plaintext, nil
}

// Challenge completes a pending MFA login: the caller presents the pending
// token from the password step plus either a TOTP code or a recovery code.
// A used recovery code is consumed. Failures never touch the lockout
// counter; the challenge endpoint is rate limited instead.
func (s *MFAService) Challenge(ctx context.Context, pendingToken, method, code string) (domain.SessionResult, error) {
	now := s.now()

	claims, err := s.Verifier.Verify(pendingToken)
	if err != nil {
		s.emitChallenge(ctx, "", "", "", false, "invalid pending token")
		return domain.SessionResult{}, ErrInvalidPendingToken
	}
	if err := claims.ValidateExpiry(now); err != nil {
		s.emitChallenge(ctx, claims.Subject, claims.Email, "", false, "pending token expired")
		return domain.SessionResult{}, ErrInvalidPendingToken
	}
	if !claims.MFAPending {
		s.emitChallenge(ctx, claims.Subject, claims.Email, "", false, "not a pending token")
		return domain.SessionResult{}, ErrInvalidPendingToken
	}

	acct, err := s.Store.Accounts().GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.emitChallenge(ctx, claims.Subject, claims.Email, "", false, "account not found")
			return domain.SessionResult{}, ErrInvalidPendingToken
		}
		return domain.SessionResult{}, fmt.Errorf("lookup account: %w", err)
	}
	if !acct.MFAEnabled() {
		return domain.SessionResult{}, ErrMFANotEnabled
	}

	var ok bool
	switch method {
	case domain.MFAMethodRecoveryCode:
		ok, err = s.consumeRecoveryCode(ctx, &acct, code)
		if err != nil {
			return domain.SessionResult{}, err
		}
	case domain.MFAMethodTOTP, "":
		if acct.MFASecret == nil {
			return domain.SessionResult{}, ErrMFANotInitiated
		}
		seed, oerr := s.Envelope.Open(*acct.MFASecret)
		if oerr != nil {
			return domain.SessionResult{}, fmt.Errorf("open TOTP seed: %w", oerr)
		}
		ok = s.validTOTP(code, seed, now)
	default:
		ok = false
	}

	if !ok {
		s.emitChallenge(ctx, acct.ID, acct.Email, acct.Role, false, "invalid MFA code")
		return domain.SessionResult{}, ErrInvalidMFACode
	}

	ttl := s.SessionTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}
	token, err := s.Tokens.Sign(jwtx.NewSessionClaims(acct.ID, acct.Email, acct.Role, s.Issuer, ttl, now))
	if err != nil {
		return domain.SessionResult{}, fmt.Errorf("sign session token: %w", err)
	}

	s.emitChallenge(ctx, acct.ID, acct.Email, acct.Role, true, "")
	return domain.SessionResult{
		Token:     token,
		ExpiresIn: ttl,
		Profile:   acct.PublicProfile(),
	}, nil
}

// Disable re-authenticates with the account password and clears all MFA
// state, recovery codes included.
func (s *MFAService) Disable(ctx context.Context, accountID, password string) error {
	acct, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if !acct.MFAEnabled() {
		return ErrMFANotEnabled
	}

	if cryptox.VerifyPassword(password, acct.PasswordHash) != nil {
		s.emit(ctx, audit.Event{
			Action:       audit.ActionMFADisable,
			Resource:     "mfa",
			AccountID:    acct.ID,
			Email:        acct.Email,
			Role:         acct.Role,
			Success:      false,
			ErrorMessage: "password incorrect",
		})
		return ErrInvalidPassword
	}

	if err := s.Store.Accounts().DisableMFA(ctx, acct.ID); err != nil {
		return fmt.Errorf("disable MFA: %w", err)
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionMFADisable,
		Resource:  "mfa",
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		Success:   true,
	})
	return nil
}

// consumeRecoveryCode opens each sealed code and compares in constant time.
// A matching code is removed from the stored list before reporting success.
func (s *MFAService) consumeRecoveryCode(ctx context.Context, acct *domain.Account, code string) (bool, error) {
	match := -1
	for i, sealed := range acct.MFARecoveryCodes {
		plain, err := s.Envelope.Open(sealed)
		if err != nil {
			return false, fmt.Errorf("open recovery code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(plain), []byte(code)) == 1 {
			match = i
		}
	}
	if match < 0 {
		return false, nil
	}

	remaining := make([]string, 0, len(acct.MFARecoveryCodes)-1)
	remaining = append(remaining, acct.MFARecoveryCodes[:match]...)
	remaining = append(remaining, acct.MFARecoveryCodes[match+1:]...)
	if err := s.Store.Accounts().UpdateRecoveryCodes(ctx, acct.ID, remaining); err != nil {
		return false, fmt.Errorf("consume recovery code: %w", err)
	}
	acct.MFARecoveryCodes = remaining
	return true, nil
}

func (s *MFAService) validTOTP(code, seed string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, seed, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MFAService) emit(ctx context.Context, e audit.Event) {
	info := audit.RequestInfoFromContext(ctx)
	e.IPAddress = info.IPAddress
	e.UserAgent = info.UserAgent
	s.Audit.Emit(e)
}

func (s *MFAService) emitChallenge(ctx context.Context, accountID, email, role string, success bool, msg string) {
	s.emit(ctx, audit.Event{
		Action:       audit.ActionMFAChallenge,
		Resource:     "session",
		AccountID:    accountID,
		Email:        email,
		Role:         role,
		Success:      success,
		ErrorMessage: msg,
	})
}
