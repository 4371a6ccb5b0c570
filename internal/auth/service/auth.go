package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
	"github.com/siloamhealth/siloam-auth/internal/auth/domain"
	"github.com/siloamhealth/siloam-auth/internal/auth/policy"
	"github.com/siloamhealth/siloam-auth/internal/auth/store"
	"github.com/siloamhealth/siloam-auth/pkg/cryptox"
	"github.com/siloamhealth/siloam-auth/pkg/idx"
	"github.com/siloamhealth/siloam-auth/pkg/jwtx"
)

// Lockout parameters. Five consecutive failures lock the account for thirty
// minutes; a failure after the window expires starts a fresh cycle.
const (
	MaxLoginAttempts = 5
	LockDuration     = 30 * time.Minute
)

// AuthService orchestrates registration, login and password changes. Every
// invocation emits exactly one terminal audit event.
type AuthService struct {
	Store  store.Store
	Tokens jwtx.Signer
	Policy policy.Engine
	Audit  *audit.Emitter

	Issuer     string
	SessionTTL time.Duration

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// RegisterInput is the material needed to create an account. Role may be
// empty or "patient"; anything else is rejected.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Role        string
}

// Register validates the password against policy, creates the account and
// issues a session token.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.SessionResult, error) {
	now := s.now()
	email := strings.ToLower(strings.TrimSpace(in.Email))

	// Self-registration only ever creates patient accounts. Privileged roles
	// (doctor, nurse, admin, staff) are provisioned out of band.
	switch in.Role {
	case "", domain.RolePatient:
		in.Role = domain.RolePatient
	default:
		return domain.SessionResult{}, ErrInvalidRole
	}

	if res := s.Policy.Validate(in.Password); !res.IsValid {
		s.emit(ctx, audit.Event{
			Action:       audit.ActionRegister,
			Resource:     "account",
			Email:        email,
			Success:      false,
			ErrorMessage: "password policy violation",
		})
		return domain.SessionResult{}, &PasswordPolicyError{Violations: res.Errors, Strength: res.Strength}
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.SessionResult{}, fmt.Errorf("hash password: %w", err)
	}

	acct := domain.Account{
		ID:                idx.New().String(),
		Email:             email,
		Role:              in.Role,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		PhoneNumber:       in.PhoneNumber,
		PasswordHash:      hash,
		PasswordChangedAt: &now,
		IsActive:          true,
	}

	if err := s.Store.Accounts().Create(ctx, acct); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			s.emit(ctx, audit.Event{
				Action:       audit.ActionRegister,
				Resource:     "account",
				Email:        email,
				Success:      false,
				ErrorMessage: "email already registered",
			})
			return domain.SessionResult{}, ErrDuplicateEmail
		}
		return domain.SessionResult{}, fmt.Errorf("create account: %w", err)
	}

	session, err := s.issueSession(acct, now)
	if err != nil {
		return domain.SessionResult{}, err
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionRegister,
		Resource:  "account",
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		Success:   true,
	})
	return session, nil
}

// Login runs the full password authentication flow: lockout check, active
// check, password verification, counter transition and token issuance. When
// the account has MFA enabled the result carries a short-lived pending token
// instead of a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.LoginResult, error) {
	now := s.now()
	email = strings.ToLower(strings.TrimSpace(email))

	acct, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.emit(ctx, audit.Event{
				Action:       audit.ActionLogin,
				Resource:     "session",
				Email:        email,
				Success:      false,
				ErrorMessage: "invalid credentials",
			})
			return domain.LoginResult{}, ErrInvalidCredentials
		}
		return domain.LoginResult{}, fmt.Errorf("lookup account: %w", err)
	}

	if !acct.IsActive {
		s.emit(ctx, audit.Event{
			Action:       audit.ActionLogin,
			Resource:     "session",
			AccountID:    acct.ID,
			Email:        acct.Email,
			Role:         acct.Role,
			Success:      false,
			ErrorMessage: "account deactivated",
		})
		return domain.LoginResult{}, ErrAccountDeactivated
	}

	// An active lock rejects every attempt, correct password included, and
	// does not advance the counter.
	if acct.Locked(now) {
		minutes := acct.LockMinutesRemaining(now)
		s.emit(ctx, audit.Event{
			Action:       audit.ActionLogin,
			Resource:     "session",
			AccountID:    acct.ID,
			Email:        acct.Email,
			Role:         acct.Role,
			Success:      false,
			ErrorMessage: "account locked",
			Payload:      map[string]any{"minutes_remaining": minutes},
		})
		return domain.LoginResult{}, &AccountLockedError{MinutesRemaining: minutes}
	}

	if cryptox.VerifyPassword(password, acct.PasswordHash) != nil {
		updated, ferr := s.Store.Accounts().RecordLoginFailure(ctx, acct.ID, MaxLoginAttempts, now.Add(LockDuration), now)
		if ferr != nil {
			return domain.LoginResult{}, fmt.Errorf("record login failure: %w", ferr)
		}

		if updated.Locked(now) {
			s.emit(ctx, audit.Event{
				Action:       audit.ActionAccountLocked,
				Resource:     "account",
				AccountID:    acct.ID,
				Email:        acct.Email,
				Role:         acct.Role,
				Success:      false,
				ErrorMessage: "too many failed login attempts",
				Payload:      map[string]any{"attempts": updated.LoginAttempts},
			})
			return domain.LoginResult{}, &AccountLockedError{MinutesRemaining: updated.LockMinutesRemaining(now)}
		}

		s.emit(ctx, audit.Event{
			Action:       audit.ActionLogin,
			Resource:     "session",
			AccountID:    acct.ID,
			Email:        acct.Email,
			Role:         acct.Role,
			Success:      false,
			ErrorMessage: "invalid credentials",
			Payload:      map[string]any{"attempts": updated.LoginAttempts},
		})
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	if err := s.Store.Accounts().ResetLockout(ctx, acct.ID, now); err != nil {
		return domain.LoginResult{}, fmt.Errorf("reset lockout: %w", err)
	}

	if acct.MFAEnabled() {
		pending, err := s.Tokens.Sign(jwtx.NewPendingMFAClaims(acct.ID, acct.Email, s.Issuer, now))
		if err != nil {
			return domain.LoginResult{}, fmt.Errorf("sign pending token: %w", err)
		}
		s.emit(ctx, audit.Event{
			Action:    audit.ActionLogin,
			Resource:  "session",
			AccountID: acct.ID,
			Email:     acct.Email,
			Role:      acct.Role,
			Success:   true,
			Payload:   map[string]any{"mfa_required": true},
		})
		return domain.LoginResult{MFARequired: true, PendingToken: pending}, nil
	}

	session, err := s.issueSession(acct, now)
	if err != nil {
		return domain.LoginResult{}, err
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionLogin,
		Resource:  "session",
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		Success:   true,
	})
	return domain.LoginResult{Session: &session}, nil
}

// ChangePassword re-authenticates with the current password, applies the
// policy and history checks, then rotates the history with the outgoing hash
// at the front.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	now := s.now()

	acct, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}

	if cryptox.VerifyPassword(currentPassword, acct.PasswordHash) != nil {
		s.emit(ctx, audit.Event{
			Action:       audit.ActionPasswordChange,
			Resource:     "credentials",
			AccountID:    acct.ID,
			Email:        acct.Email,
			Role:         acct.Role,
			Success:      false,
			ErrorMessage: "current password incorrect",
		})
		return ErrInvalidCurrentPassword
	}

	if res := s.Policy.Validate(newPassword); !res.IsValid {
		s.emit(ctx, audit.Event{
			Action:       audit.ActionPasswordChange,
			Resource:     "credentials",
			AccountID:    acct.ID,
			Email:        acct.Email,
			Role:         acct.Role,
			Success:      false,
			ErrorMessage: "password policy violation",
		})
		return &PasswordPolicyError{Violations: res.Errors, Strength: res.Strength}
	}

	// The reuse check covers the current hash plus the retained history.
	priorHashes := append([]string{acct.PasswordHash}, acct.PasswordHistory...)
	if !policy.CheckHistory(newPassword, priorHashes) {
		s.emit(ctx, audit.Event{
			Action:       audit.ActionPasswordChange,
			Resource:     "credentials",
			AccountID:    acct.ID,
			Email:        acct.Email,
			Role:         acct.Role,
			Success:      false,
			ErrorMessage: "password reused",
		})
		return ErrPasswordReused
	}

	newHash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	history := append([]string{acct.PasswordHash}, acct.PasswordHistory...)
	if len(history) > domain.PasswordHistoryLimit {
		history = history[:domain.PasswordHistoryLimit]
	}

	if err := s.Store.Accounts().UpdatePassword(ctx, acct.ID, newHash, history, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionPasswordChange,
		Resource:  "credentials",
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		Success:   true,
	})
	return nil
}

// GetProfile returns the public projection of an account.
func (s *AuthService) GetProfile(ctx context.Context, accountID string) (domain.Profile, error) {
	acct, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return domain.Profile{}, err
	}
	return acct.PublicProfile(), nil
}

func (s *AuthService) issueSession(acct domain.Account, now time.Time) (domain.SessionResult, error) {
	ttl := s.SessionTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}
	token, err := s.Tokens.Sign(jwtx.NewSessionClaims(acct.ID, acct.Email, acct.Role, s.Issuer, ttl, now))
	if err != nil {
		return domain.SessionResult{}, fmt.Errorf("sign session token: %w", err)
	}
	return domain.SessionResult{
		Token:     token,
		ExpiresIn: ttl,
		Profile:   acct.PublicProfile(),
	}, nil
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) emit(ctx context.Context, e audit.Event) {
	info := audit.RequestInfoFromContext(ctx)
	e.IPAddress = info.IPAddress
	e.UserAgent = info.UserAgent
	s.Audit.Emit(e)
}
