package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
	"github.com/siloamhealth/siloam-auth/internal/auth/domain"
	"github.com/siloamhealth/siloam-auth/pkg/jwtx"
)

func TestMFASetup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stores a sealed seed without enabling", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "setup@example.com")

		acct, err := f.auth.Store.Accounts().GetByEmail(ctx, "setup@example.com")
		require.NoError(t, err)

		setup, err := f.mfa.Setup(ctx, acct.ID)
		require.NoError(t, err)
		require.NotEmpty(t, setup.ManualKey)
		require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
		require.Contains(t, setup.ProvisioningURI, testIssuer)
		require.Equal(t, "setup@example.com", setup.Account)

		stored, err := f.auth.Store.Accounts().GetByID(ctx, acct.ID)
		require.NoError(t, err)
		require.False(t, stored.MFAEnabled())
		require.NotNil(t, stored.MFASecret)

		// Only the sealed envelope is persisted.
		require.NotEqual(t, setup.ManualKey, *stored.MFASecret)
		seed, err := f.mfa.Envelope.Open(*stored.MFASecret)
		require.NoError(t, err)
		require.Equal(t, setup.ManualKey, seed)
	})

	t.Run("repeat setup replaces the tentative seed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "replace@example.com")

		acct, err := f.auth.Store.Accounts().GetByEmail(ctx, "replace@example.com")
		require.NoError(t, err)

		first, err := f.mfa.Setup(ctx, acct.ID)
		require.NoError(t, err)
		second, err := f.mfa.Setup(ctx, acct.ID)
		require.NoError(t, err)
		require.NotEqual(t, first.ManualKey, second.ManualKey)

		// A code from the first seed no longer verifies.
		_, err = f.mfa.Verify(ctx, acct.ID, f.totpCode(t, first.ManualKey))
		require.ErrorIs(t, err, ErrInvalidMFACode)
	})

	t.Run("rejects setup when already enabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "enabled@example.com")
		f.enableMFA(t, "enabled@example.com")

		acct, err := f.auth.Store.Accounts().GetByEmail(ctx, "enabled@example.com")
		require.NoError(t, err)

		_, err = f.mfa.Setup(ctx, acct.ID)
		require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
	})
}

func TestMFAVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("enables MFA and returns recovery codes once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "verify@example.com")

		acct, err := f.auth.Store.Accounts().GetByEmail(ctx, "verify@example.com")
		require.NoError(t, err)

		setup, err := f.mfa.Setup(ctx, acct.ID)
		require.NoError(t, err)

		codes, err := f.mfa.Verify(ctx, acct.ID, f.totpCode(t, setup.ManualKey))
		require.NoError(t, err)
		require.Len(t, codes, 10)

		stored, err := f.auth.Store.Accounts().GetByID(ctx, acct.ID)
		require.NoError(t, err)
		require.True(t, stored.MFAEnabled())
		require.Len(t, stored.MFARecoveryCodes, 10)

		// Persisted codes are sealed, never the plaintext shown to the user.
		for i, sealed := range stored.MFARecoveryCodes {
			require.NotEqual(t, codes[i], sealed)
			plain, oerr := f.mfa.Envelope.Open(sealed)
			require.NoError(t, oerr)
			require.Equal(t, codes[i], plain)
		}
	})

	t.Run("wrong code never enables", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "wrongcode@example.com")

		acct, err := f.auth.Store.Accounts().GetByEmail(ctx, "wrongcode@example.com")
		require.NoError(t, err)

		_, err = f.mfa.Setup(ctx, acct.ID)
		require.NoError(t, err)

		_, err = f.mfa.Verify(ctx, acct.ID, "000000")
		require.ErrorIs(t, err, ErrInvalidMFACode)

		stored, err := f.auth.Store.Accounts().GetByID(ctx, acct.ID)
		require.NoError(t, err)
		require.False(t, stored.MFAEnabled())
	})

	t.Run("rejects verify without setup", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "nosetup@example.com")

		acct, err := f.auth.Store.Accounts().GetByEmail(ctx, "nosetup@example.com")
		require.NoError(t, err)

		_, err = f.mfa.Verify(ctx, acct.ID, "123456")
		require.ErrorIs(t, err, ErrMFANotInitiated)
	})

	t.Run("rejects verify when already enabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "again@example.com")
		seed, _ := f.enableMFA(t, "again@example.com")

		acct, err := f.auth.Store.Accounts().GetByEmail(ctx, "again@example.com")
		require.NoError(t, err)

		_, err = f.mfa.Verify(ctx, acct.ID, f.totpCode(t, seed))
		require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
	})
}

func TestMFAChallenge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pendingToken := func(t *testing.T, f *fixture, email string) string {
		t.Helper()
		result, err := f.auth.Login(ctx, email, testPassword)
		require.NoError(t, err)
		require.True(t, result.MFARequired)
		return result.PendingToken
	}

	t.Run("totp code completes the login", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "challenge@example.com")
		seed, _ := f.enableMFA(t, "challenge@example.com")

		pending := pendingToken(t, f, "challenge@example.com")

		session, err := f.mfa.Challenge(ctx, pending, domain.MFAMethodTOTP, f.totpCode(t, seed))
		require.NoError(t, err)
		require.NotEmpty(t, session.Token)
		require.True(t, session.Profile.IsMFAEnabled)

		claims, err := f.tokens.Verify(session.Token)
		require.NoError(t, err)
		require.False(t, claims.MFAPending)
		require.Equal(t, domain.RolePatient, claims.Role)
	})

	t.Run("empty method defaults to totp", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "default@example.com")
		seed, _ := f.enableMFA(t, "default@example.com")

		_, err := f.mfa.Challenge(ctx, pendingToken(t, f, "default@example.com"), "", f.totpCode(t, seed))
		require.NoError(t, err)
	})

	t.Run("wrong totp code", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "badcode@example.com")
		f.enableMFA(t, "badcode@example.com")

		_, err := f.mfa.Challenge(ctx, pendingToken(t, f, "badcode@example.com"), domain.MFAMethodTOTP, "000000")
		require.ErrorIs(t, err, ErrInvalidMFACode)

		events := f.waitForAudit(t, audit.ActionMFAChallenge, 1)
		require.False(t, events[len(events)-1].Success)
	})

	t.Run("unknown method fails closed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "method@example.com")
		seed, _ := f.enableMFA(t, "method@example.com")

		_, err := f.mfa.Challenge(ctx, pendingToken(t, f, "method@example.com"), "sms", f.totpCode(t, seed))
		require.ErrorIs(t, err, ErrInvalidMFACode)
	})

	t.Run("rejects garbage token", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.mfa.Challenge(ctx, "not.a.token", domain.MFAMethodTOTP, "123456")
		require.ErrorIs(t, err, ErrInvalidPendingToken)
	})

	t.Run("rejects a full session token", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "session@example.com")
		seed, _ := f.enableMFA(t, "session@example.com")

		pending := pendingToken(t, f, "session@example.com")
		session, err := f.mfa.Challenge(ctx, pending, domain.MFAMethodTOTP, f.totpCode(t, seed))
		require.NoError(t, err)

		// The issued session token is not MFA-pending; it must not open
		// another challenge.
		_, err = f.mfa.Challenge(ctx, session.Token, domain.MFAMethodTOTP, f.totpCode(t, seed))
		require.ErrorIs(t, err, ErrInvalidPendingToken)
	})

	t.Run("rejects expired pending token", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "stale@example.com")
		seed, _ := f.enableMFA(t, "stale@example.com")

		pending := pendingToken(t, f, "stale@example.com")
		f.clock.Advance(jwtx.PendingMFATTL + time.Minute)

		_, err := f.mfa.Challenge(ctx, pending, domain.MFAMethodTOTP, f.totpCode(t, seed))
		require.ErrorIs(t, err, ErrInvalidPendingToken)
	})

	t.Run("rejects pending token when MFA has been disabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "disabled@example.com")
		seed, _ := f.enableMFA(t, "disabled@example.com")

		pending := pendingToken(t, f, "disabled@example.com")
		require.NoError(t, f.mfa.Disable(ctx, mustAccountID(t, f, "disabled@example.com"), testPassword))

		_, err := f.mfa.Challenge(ctx, pending, domain.MFAMethodTOTP, f.totpCode(t, seed))
		require.ErrorIs(t, err, ErrMFANotEnabled)
	})

	t.Run("recovery code completes the login and is consumed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "recovery@example.com")
		_, codes := f.enableMFA(t, "recovery@example.com")

		session, err := f.mfa.Challenge(ctx, pendingToken(t, f, "recovery@example.com"),
			domain.MFAMethodRecoveryCode, codes[3])
		require.NoError(t, err)
		require.NotEmpty(t, session.Token)

		stored, err := f.auth.Store.Accounts().GetByEmail(ctx, "recovery@example.com")
		require.NoError(t, err)
		require.Len(t, stored.MFARecoveryCodes, 9)

		// A consumed code cannot be replayed.
		_, err = f.mfa.Challenge(ctx, pendingToken(t, f, "recovery@example.com"),
			domain.MFAMethodRecoveryCode, codes[3])
		require.ErrorIs(t, err, ErrInvalidMFACode)

		// The remaining codes still work.
		_, err = f.mfa.Challenge(ctx, pendingToken(t, f, "recovery@example.com"),
			domain.MFAMethodRecoveryCode, codes[0])
		require.NoError(t, err)
	})
}

func TestMFADisable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("clears all MFA state", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "clear@example.com")
		f.enableMFA(t, "clear@example.com")
		id := mustAccountID(t, f, "clear@example.com")

		require.NoError(t, f.mfa.Disable(ctx, id, testPassword))

		stored, err := f.auth.Store.Accounts().GetByID(ctx, id)
		require.NoError(t, err)
		require.False(t, stored.MFAEnabled())
		require.Nil(t, stored.MFASecret)
		require.Empty(t, stored.MFARecoveryCodes)

		// Login goes straight to a session again.
		result, err := f.auth.Login(ctx, "clear@example.com", testPassword)
		require.NoError(t, err)
		require.False(t, result.MFARequired)
		require.NotNil(t, result.Session)
	})

	t.Run("rejects incorrect password", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "reauth@example.com")
		f.enableMFA(t, "reauth@example.com")
		id := mustAccountID(t, f, "reauth@example.com")

		err := f.mfa.Disable(ctx, id, "Wrong-Passw0rd@1")
		require.ErrorIs(t, err, ErrInvalidPassword)

		stored, gerr := f.auth.Store.Accounts().GetByID(ctx, id)
		require.NoError(t, gerr)
		require.True(t, stored.MFAEnabled())
	})

	t.Run("rejects when not enabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.register(t, "never@example.com")

		err := f.mfa.Disable(ctx, mustAccountID(t, f, "never@example.com"), testPassword)
		require.ErrorIs(t, err, ErrMFANotEnabled)
	})
}

func mustAccountID(t *testing.T, f *fixture, email string) string {
	t.Helper()
	acct, err := f.auth.Store.Accounts().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return acct.ID
}
