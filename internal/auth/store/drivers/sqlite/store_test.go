package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
	"github.com/siloamhealth/siloam-auth/internal/auth/domain"
	"github.com/siloamhealth/siloam-auth/internal/auth/store"
	"github.com/siloamhealth/siloam-auth/pkg/idx"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	return st
}

func newTestAccount() domain.Account {
	return domain.Account{
		ID:           idx.New().String(),
		Email:        idx.New().String() + "@example.org",
		Role:         domain.RoleNurse,
		FirstName:    "Maya",
		LastName:     "Tan",
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		IsActive:     true,
	}
}

func TestAccountsCreateAndGet(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	accounts := st.Accounts()

	acct := newTestAccount()
	require.NoError(t, accounts.Create(ctx, acct))

	t.Run("by id", func(t *testing.T) {
		got, err := accounts.GetByID(ctx, acct.ID)
		require.NoError(t, err)
		require.Equal(t, acct.Email, got.Email)
		require.Equal(t, domain.RoleNurse, got.Role)
		require.True(t, got.IsActive)
		require.False(t, got.MFAEnabled())
		require.Zero(t, got.LoginAttempts)
		require.Nil(t, got.LockUntil)
		require.False(t, got.CreatedAt.IsZero())
	})

	t.Run("by email is case-insensitive", func(t *testing.T) {
		upper := strings.ToUpper(acct.Email)
		got, err := accounts.GetByEmail(ctx, upper)
		require.NoError(t, err)
		require.Equal(t, acct.ID, got.ID)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := accounts.GetByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		dup := newTestAccount()
		dup.Email = acct.Email
		require.ErrorIs(t, accounts.Create(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("duplicate email conflicts case-insensitively", func(t *testing.T) {
		dup := newTestAccount()
		dup.Email = strings.ToUpper(acct.Email)
		require.ErrorIs(t, accounts.Create(ctx, dup), store.ErrAlreadyExists)
	})
}

func TestRecordLoginFailureTransitions(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	accounts := st.Accounts()

	acct := newTestAccount()
	require.NoError(t, accounts.Create(ctx, acct))

	now := time.Now().UTC().Truncate(time.Second)
	lockUntil := now.Add(30 * time.Minute)

	t.Run("increments until lock engages", func(t *testing.T) {
		for i := 1; i < 5; i++ {
			got, err := accounts.RecordLoginFailure(ctx, acct.ID, 5, lockUntil, now)
			require.NoError(t, err)
			require.Equal(t, i, got.LoginAttempts)
			require.Nil(t, got.LockUntil, "no lock before the threshold")
		}

		got, err := accounts.RecordLoginFailure(ctx, acct.ID, 5, lockUntil, now)
		require.NoError(t, err)
		require.Equal(t, 5, got.LoginAttempts)
		require.NotNil(t, got.LockUntil)
		require.True(t, got.Locked(now))
	})

	t.Run("expired lock starts a fresh cycle", func(t *testing.T) {
		later := lockUntil.Add(time.Minute)
		got, err := accounts.RecordLoginFailure(ctx, acct.ID, 5, later.Add(30*time.Minute), later)
		require.NoError(t, err)
		require.Equal(t, 1, got.LoginAttempts, "expired lock resets the counter")
		require.Nil(t, got.LockUntil)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := accounts.RecordLoginFailure(ctx, "nope", 5, lockUntil, now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRecordLoginFailureConcurrent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	accounts := st.Accounts()

	acct := newTestAccount()
	require.NoError(t, accounts.Create(ctx, acct))

	now := time.Now().UTC().Truncate(time.Second)
	lockUntil := now.Add(30 * time.Minute)

	const n = 4
	errs := make(chan error, n)
	for range n {
		go func() {
			_, err := accounts.RecordLoginFailure(ctx, acct.ID, 10, lockUntil, now)
			errs <- err
		}()
	}
	for range n {
		require.NoError(t, <-errs)
	}

	got, err := accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, n, got.LoginAttempts, "concurrent failures must not lose increments")
}

func TestResetLockout(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	accounts := st.Accounts()

	acct := newTestAccount()
	require.NoError(t, accounts.Create(ctx, acct))

	now := time.Now().UTC().Truncate(time.Second)
	_, err := accounts.RecordLoginFailure(ctx, acct.ID, 2, now.Add(30*time.Minute), now)
	require.NoError(t, err)

	require.NoError(t, accounts.ResetLockout(ctx, acct.ID, now))

	got, err := accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	require.Zero(t, got.LoginAttempts)
	require.Nil(t, got.LockUntil)
	require.NotNil(t, got.LastLoginAt)
}

func TestClearExpiredLocks(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	accounts := st.Accounts()

	locked := newTestAccount()
	require.NoError(t, accounts.Create(ctx, locked))
	now := time.Now().UTC().Truncate(time.Second)

	// Drive the account into a locked state with a short window.
	for range 2 {
		_, err := accounts.RecordLoginFailure(ctx, locked.ID, 2, now.Add(time.Minute), now)
		require.NoError(t, err)
	}
	got, err := accounts.GetByID(ctx, locked.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LockUntil)

	t.Run("active locks untouched", func(t *testing.T) {
		cleared, err := accounts.ClearExpiredLocks(ctx, now)
		require.NoError(t, err)
		require.Zero(t, cleared)
	})

	t.Run("expired locks swept", func(t *testing.T) {
		cleared, err := accounts.ClearExpiredLocks(ctx, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 1, cleared)

		got, err := accounts.GetByID(ctx, locked.ID)
		require.NoError(t, err)
		require.Zero(t, got.LoginAttempts)
		require.Nil(t, got.LockUntil)
	})
}

func TestUpdatePasswordAndHistory(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	accounts := st.Accounts()

	acct := newTestAccount()
	require.NoError(t, accounts.Create(ctx, acct))

	now := time.Now().UTC().Truncate(time.Second)
	history := []string{acct.PasswordHash, "older-hash-1", "older-hash-2"}

	require.NoError(t, accounts.UpdatePassword(ctx, acct.ID, "new-hash", history, now))

	got, err := accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)
	require.Equal(t, history, got.PasswordHistory)
	require.NotNil(t, got.PasswordChangedAt)
}

func TestMFALifecyclePersistence(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	accounts := st.Accounts()

	acct := newTestAccount()
	require.NoError(t, accounts.Create(ctx, acct))
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, accounts.SetMFASecret(ctx, acct.ID, "sealed-seed"))
	got, err := accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MFASecret)
	require.Equal(t, "sealed-seed", *got.MFASecret)
	require.False(t, got.MFAEnabled(), "tentative seed does not enable MFA")

	codes := []string{"sealed-1", "sealed-2", "sealed-3"}
	require.NoError(t, accounts.EnableMFA(ctx, acct.ID, codes, now))
	got, err = accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	require.True(t, got.MFAEnabled())
	require.Equal(t, codes, got.MFARecoveryCodes)

	require.NoError(t, accounts.UpdateRecoveryCodes(ctx, acct.ID, codes[1:]))
	got, err = accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, codes[1:], got.MFARecoveryCodes)

	require.NoError(t, accounts.DisableMFA(ctx, acct.ID))
	got, err = accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled())
	require.Nil(t, got.MFASecret)
	require.Empty(t, got.MFARecoveryCodes)
}

func TestAuditEventsAppendAndList(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	events := st.AuditEvents()

	base := time.Now().UTC().Truncate(time.Second)
	for i := range 3 {
		e := audit.Event{
			ID:        idx.New().String(),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			AccountID: "acct-1",
			Email:     "nurse@example.org",
			Action:    audit.ActionLogin,
			Resource:  "session",
			IPAddress: "10.0.0.1",
			UserAgent: "test",
			Success:   i%2 == 0,
			Payload:   map[string]any{"attempts": float64(i)},
		}
		require.NoError(t, events.Append(ctx, e))
	}

	got, err := events.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].Timestamp.After(got[1].Timestamp), "newest first")
	require.Equal(t, audit.ActionLogin, got[0].Action)
	require.Equal(t, map[string]any{"attempts": float64(2)}, got[0].Payload)
}
