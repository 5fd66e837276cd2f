// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements account.Store on an embedded SQLite database.
//
// Every transaction starts with BEGIN IMMEDIATE, so a read-write unit holds
// the database write lock from its first read. This gives the same
// no-lost-update guarantee as row locks on PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holomush/acctgate/internal/account"
)

// BusyTimeout is how long a connection waits for the write lock.
const BusyTimeout = 5 * time.Second

// DBTX is the subset of database/sql used by transactions.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements account.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ account.Store = (*Store)(nil)

// DSN returns the driver connection string for the database file at path.
func DSN(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(" + strconv.FormatInt(BusyTimeout.Milliseconds(), 10) + ")" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// Open opens the database file at path. The schema is managed by the
// migrator, not here.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("path", path).Wrap(err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("DB_CONNECT_FAILED").With("path", path).With("operation", "ping").Wrap(err)
	}
	return New(db), nil
}

// New creates a Store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx implements account.Store. It commits on success and rolls back on
// error or panic. Panics are rethrown.
func (s *Store) WithTx(ctx context.Context, opts account.TxOptions, fn func(ctx context.Context, tx account.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback() //nolint:errcheck // panic takes precedence
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback() //nolint:errcheck // fn error takes precedence
			return
		}
		if cerr := sqlTx.Commit(); cerr != nil {
			err = translate(cerr, "commit transaction")
		}
	}()

	return fn(ctx, &tx{db: sqlTx, readOnly: opts.ReadOnly})
}

var uniqueColumnPattern = regexp.MustCompile(`UNIQUE constraint failed: \w+\.(\w+)`)

// translate maps SQLite errors onto the account store errors.
func translate(err error, operation string) error {
	code := 0
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code = sqliteErr.Code()
	}
	msg := err.Error()

	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(msg, "UNIQUE constraint failed"):
		column := ""
		if m := uniqueColumnPattern.FindStringSubmatch(msg); m != nil {
			column = m[1]
		}
		return oops.Code("USER_UNIQUE_VIOLATION").
			With("operation", operation).
			Wrap(&account.UniqueViolation{Column: column})
	case code&0xff == sqlite3.SQLITE_BUSY,
		code&0xff == sqlite3.SQLITE_LOCKED,
		strings.Contains(msg, "database is locked"):
		return oops.Code("STORE_CONFLICT").
			With("operation", operation).
			Wrap(account.ErrConflict)
	}
	return oops.Code("STORE_QUERY_FAILED").With("operation", operation).Wrap(err)
}

var errReadOnly = oops.Code("STORE_READ_ONLY").Errorf("write in read-only transaction")

const userColumns = `id, username, email, display_name, password_hash, role, tier,
	password_updated_at, failed_login_attempts, is_locked, locked_until,
	reset_token_hash, reset_token_expiry, created_at, updated_at`

type tx struct {
	db       DBTX
	readOnly bool
}

func (t *tx) CreateUser(ctx context.Context, u *account.User) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID.String(),
		u.Username,
		u.Email,
		u.DisplayName,
		u.PasswordHash,
		u.Role.String(),
		u.Tier.String(),
		u.PasswordUpdatedAt.UTC(),
		u.FailedLoginAttempts,
		u.IsLocked,
		nullTime(u.LockedUntil),
		nullString(u.ResetTokenHash),
		nullTime(u.ResetTokenExpiry),
		u.CreatedAt.UTC(),
		u.UpdatedAt.UTC(),
	)
	if err != nil {
		return translate(err, "insert user")
	}
	return nil
}

func (t *tx) GetUserByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	return t.queryUser(ctx, `id = ?`, id.String())
}

func (t *tx) GetUserByIdentifier(ctx context.Context, identifier string) (*account.User, error) {
	return t.queryUser(ctx, `username = ?1 COLLATE NOCASE OR email = ?1 COLLATE NOCASE`, identifier)
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (*account.User, error) {
	return t.queryUser(ctx, `email = ? COLLATE NOCASE`, email)
}

func (t *tx) GetUserByResetToken(ctx context.Context, tokenHash string) (*account.User, error) {
	return t.queryUser(ctx, `reset_token_hash = ?`, tokenHash)
}

func (t *tx) UserExists(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := t.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE username = ? COLLATE NOCASE OR email = ? COLLATE NOCASE
		)
	`, username, email).Scan(&exists)
	if err != nil {
		return false, translate(err, "check user exists")
	}
	return exists, nil
}

func (t *tx) UpdateUser(ctx context.Context, u *account.User) error {
	if t.readOnly {
		return errReadOnly
	}
	result, err := t.db.ExecContext(ctx, `
		UPDATE users SET
			username = ?,
			email = ?,
			display_name = ?,
			password_hash = ?,
			role = ?,
			tier = ?,
			password_updated_at = ?,
			failed_login_attempts = ?,
			is_locked = ?,
			locked_until = ?,
			reset_token_hash = ?,
			reset_token_expiry = ?,
			updated_at = ?
		WHERE id = ?
	`,
		u.Username,
		u.Email,
		u.DisplayName,
		u.PasswordHash,
		u.Role.String(),
		u.Tier.String(),
		u.PasswordUpdatedAt.UTC(),
		u.FailedLoginAttempts,
		u.IsLocked,
		nullTime(u.LockedUntil),
		nullString(u.ResetTokenHash),
		nullTime(u.ResetTokenExpiry),
		u.UpdatedAt.UTC(),
		u.ID.String(),
	)
	if err != nil {
		return translate(err, "update user")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return translate(err, "update user")
	}
	if n == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", u.ID.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

func (t *tx) AppendLoginLog(ctx context.Context, entry *account.LoginLog) error {
	if t.readOnly {
		return errReadOnly
	}
	var userID sql.NullString
	if entry.UserID != nil {
		userID = sql.NullString{String: entry.UserID.String(), Valid: true}
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO login_logs (id, identifier, user_id, success, origin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID.String(),
		entry.Identifier,
		userID,
		entry.Success,
		nullString(entry.Origin),
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return translate(err, "insert login log")
	}
	return nil
}

func (t *tx) queryUser(ctx context.Context, where string, args ...any) (*account.User, error) {
	row := t.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...)

	var (
		u          account.User
		idStr      string
		roleName   string
		tierName   string
		lockedAt   sql.NullTime
		tokenHash  sql.NullString
		tokenUntil sql.NullTime
	)
	err := row.Scan(
		&idStr,
		&u.Username,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&roleName,
		&tierName,
		&u.PasswordUpdatedAt,
		&u.FailedLoginAttempts,
		&u.IsLocked,
		&lockedAt,
		&tokenHash,
		&tokenUntil,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("where", where).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, translate(err, "get user")
	}

	if u.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("USER_SCAN_FAILED").With("id", idStr).Wrapf(err, "corrupt user id")
	}
	if u.Role, err = account.ParseRole(roleName); err != nil {
		return nil, err
	}
	if u.Tier, err = account.ParseTier(tierName); err != nil {
		return nil, err
	}
	if lockedAt.Valid {
		u.LockedUntil = &lockedAt.Time
	}
	if tokenHash.Valid {
		u.ResetTokenHash = &tokenHash.String
	}
	if tokenUntil.Valid {
		u.ResetTokenExpiry = &tokenUntil.Time
	}
	return &u, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
