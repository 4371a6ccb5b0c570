package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/siloamhealth/siloam-auth/internal/auth/domain"
	"github.com/siloamhealth/siloam-auth/internal/auth/store"
)

const accountColumns = `
	id, email, role, first_name, last_name, phone_number,
	password_hash, password_changed_at, password_history,
	is_active, is_verified, last_login_at,
	login_attempts, lock_until,
	mfa_enabled_at, mfa_secret, mfa_recovery_codes,
	created_at, updated_at`

type accountsRepo struct {
	db *sql.DB
}

func (r *accountsRepo) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? COLLATE NOCASE`, email)
	return scanAccount(row)
}

func (r *accountsRepo) Create(ctx context.Context, a domain.Account) error {
	history, err := encodeStrings(a.PasswordHistory)
	if err != nil {
		return err
	}
	recovery, err := encodeStrings(a.MFARecoveryCodes)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, email, role, first_name, last_name, phone_number,
			password_hash, password_changed_at, password_history,
			is_active, is_verified,
			login_attempts, mfa_recovery_codes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		a.ID, a.Email, a.Role, a.FirstName, a.LastName, a.PhoneNumber,
		a.PasswordHash, mapOptionalTime(a.PasswordChangedAt), history,
		a.IsActive, a.IsVerified,
		recovery,
	)
	return mapConflict(err)
}

// RecordLoginFailure applies the failed-attempt transition in one UPDATE:
// expired locks start a fresh cycle, otherwise the counter increments, and
// the lock engages when the new counter reaches maxAttempts. Running it as a
// single statement serializes concurrent failures on the row so increments
// are never lost.
func (r *accountsRepo) RecordLoginFailure(
	ctx context.Context,
	id string,
	maxAttempts int,
	lockUntil time.Time,
	now time.Time,
) (domain.Account, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= ?1 THEN 1
				ELSE login_attempts + 1
			END,
			lock_until = CASE
				WHEN (CASE
					WHEN lock_until IS NOT NULL AND lock_until <= ?1 THEN 1
					ELSE login_attempts + 1
				END) >= ?2 THEN ?3
				WHEN lock_until IS NOT NULL AND lock_until <= ?1 THEN NULL
				ELSE lock_until
			END,
			updated_at = ?1
		WHERE id = ?4`,
		now, maxAttempts, lockUntil, id,
	)
	if err != nil {
		return domain.Account{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Account{}, err
	}
	if affected == 0 {
		return domain.Account{}, store.ErrNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *accountsRepo) ResetLockout(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, `
		UPDATE accounts SET
			login_attempts = 0,
			lock_until = NULL,
			last_login_at = ?,
			updated_at = ?
		WHERE id = ?`,
		now, now, id,
	)
}

func (r *accountsRepo) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			login_attempts = 0,
			lock_until = NULL,
			updated_at = ?
		WHERE lock_until IS NOT NULL AND lock_until <= ?`,
		now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *accountsRepo) UpdatePassword(
	ctx context.Context,
	id string,
	newHash string,
	history []string,
	changedAt time.Time,
) error {
	encoded, err := encodeStrings(history)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE accounts SET
			password_hash = ?,
			password_history = ?,
			password_changed_at = ?,
			updated_at = ?
		WHERE id = ?`,
		newHash, encoded, changedAt, changedAt, id,
	)
}

func (r *accountsRepo) SetMFASecret(ctx context.Context, id string, sealedSecret string) error {
	return r.exec(ctx, `
		UPDATE accounts SET
			mfa_secret = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		sealedSecret, id,
	)
}

func (r *accountsRepo) EnableMFA(
	ctx context.Context,
	id string,
	sealedCodes []string,
	enabledAt time.Time,
) error {
	encoded, err := encodeStrings(sealedCodes)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE accounts SET
			mfa_enabled_at = ?,
			mfa_recovery_codes = ?,
			updated_at = ?
		WHERE id = ?`,
		enabledAt, encoded, enabledAt, id,
	)
}

func (r *accountsRepo) UpdateRecoveryCodes(ctx context.Context, id string, sealedCodes []string) error {
	encoded, err := encodeStrings(sealedCodes)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE accounts SET
			mfa_recovery_codes = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		encoded, id,
	)
}

func (r *accountsRepo) DisableMFA(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE accounts SET
			mfa_enabled_at = NULL,
			mfa_secret = NULL,
			mfa_recovery_codes = '[]',
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		id,
	)
}

func (r *accountsRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
