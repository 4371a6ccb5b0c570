package store

import (
	"context"
	"errors"
	"time"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
	"github.com/siloamhealth/siloam-auth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. Every security-state transition is a single
// atomic statement against one account row; there is no multi-step
// transaction surface because none of the flows need one, and concurrent
// logins against the same account serialize on the row update.
type Store interface {
	Accounts() Accounts
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Accounts is the credential store adapter. The store owns the account
// record; the security core touches only the fields exposed here.
type Accounts interface {
	// GetByID returns an account by id.
	GetByID(ctx context.Context, id string) (domain.Account, error)

	// GetByEmail performs a case-insensitive lookup.
	GetByEmail(ctx context.Context, email string) (domain.Account, error)

	// Create inserts a new account (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the email is already registered.
	Create(ctx context.Context, a domain.Account) error

	// RecordLoginFailure applies the failed-attempt transition atomically:
	// expired locks start a fresh cycle (attempts=1, lock cleared), otherwise
	// attempts increment, and the lock engages at maxAttempts. The whole
	// transition is one UPDATE so concurrent failures never lose increments.
	RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockUntil time.Time, now time.Time) (domain.Account, error)

	// ResetLockout applies the success transition: attempts=0, lock cleared,
	// last_login_at stamped.
	ResetLockout(ctx context.Context, id string, now time.Time) error

	// ClearExpiredLocks resets the counter and lock on accounts whose lock
	// window has passed. Hygienic only; login handles expired locks lazily.
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)

	// UpdatePassword overwrites the hash, replaces the history (already
	// capped by the caller) and stamps password_changed_at.
	UpdatePassword(ctx context.Context, id string, newHash string, history []string, changedAt time.Time) error

	// SetMFASecret stores a sealed TOTP seed for tentative setup. MFA stays
	// disabled until verification succeeds.
	SetMFASecret(ctx context.Context, id string, sealedSecret string) error

	// EnableMFA marks MFA enabled and stores the sealed recovery codes.
	EnableMFA(ctx context.Context, id string, sealedCodes []string, enabledAt time.Time) error

	// UpdateRecoveryCodes replaces the sealed recovery code list (used when a
	// code is consumed).
	UpdateRecoveryCodes(ctx context.Context, id string, sealedCodes []string) error

	// DisableMFA clears mfa_enabled_at, mfa_secret and the recovery codes.
	DisableMFA(ctx context.Context, id string) error
}

// AuditEvents is the append-only audit trail. Rows are never updated or
// deleted through this interface.
type AuditEvents interface {
	// Append stores one audit event.
	Append(ctx context.Context, e audit.Event) error

	// ListRecent returns the newest events, most recent first. Used for
	// compliance export and tests.
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}
