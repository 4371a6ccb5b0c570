package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/siloamhealth/siloam-auth/internal/auth/domain"
	"github.com/siloamhealth/siloam-auth/internal/auth/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection keeps in-memory databases coherent and serializes
	// writers; sqlite only supports one writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Accounts() store.Accounts       { return &accountsRepo{db: s.db} }
func (s *Store) AuditEvents() store.AuditEvents { return &auditEventsRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func mapNullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		val := nt.Time
		return &val
	}
	return nil
}

func mapOptionalTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

// encodeStrings stores string slices (password history, sealed recovery
// codes) as JSON text columns.
func encodeStrings(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	raw, err := json.Marshal(vals)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeStrings(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var (
		a                 domain.Account
		passwordChangedAt sql.NullTime
		historyRaw        string
		lastLoginAt       sql.NullTime
		lockUntil         sql.NullTime
		mfaEnabledAt      sql.NullTime
		mfaSecret         sql.NullString
		recoveryRaw       string
	)

	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Role,
		&a.FirstName,
		&a.LastName,
		&a.PhoneNumber,
		&a.PasswordHash,
		&passwordChangedAt,
		&historyRaw,
		&a.IsActive,
		&a.IsVerified,
		&lastLoginAt,
		&a.LoginAttempts,
		&lockUntil,
		&mfaEnabledAt,
		&mfaSecret,
		&recoveryRaw,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}

	a.PasswordChangedAt = mapNullTimePtr(passwordChangedAt)
	a.LastLoginAt = mapNullTimePtr(lastLoginAt)
	a.LockUntil = mapNullTimePtr(lockUntil)
	a.MFAEnabledAt = mapNullTimePtr(mfaEnabledAt)
	a.MFASecret = mapNullStringPtr(mfaSecret)

	if a.PasswordHistory, err = decodeStrings(historyRaw); err != nil {
		return domain.Account{}, err
	}
	if a.MFARecoveryCodes, err = decodeStrings(recoveryRaw); err != nil {
		return domain.Account{}, err
	}

	return a, nil
}
