// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements account.Store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/acctgate/internal/account"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store implements account.Store using PostgreSQL.
type Store struct {
	db DB
}

var (
	_ account.Store = (*Store)(nil)
	_ DB            = (*pgxpool.Pool)(nil)
)

// New creates a Store over db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// WithTx implements account.Store. Read-write units run at READ COMMITTED
// and lock every row they read with SELECT ... FOR UPDATE.
func (s *Store) WithTx(ctx context.Context, opts account.TxOptions, fn func(ctx context.Context, tx account.Tx) error) (err error) {
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}

	pgTx, err := s.db.BeginTx(ctx, txOpts)
	if err != nil {
		return translate(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = pgTx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // panic takes precedence
			panic(p)
		}
	}()

	if err := fn(ctx, &tx{tx: pgTx, lock: !opts.ReadOnly}); err != nil {
		_ = pgTx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // fn error takes precedence
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return translate(err, "commit transaction")
	}
	return nil
}

// constraintColumns maps unique index names onto the column they guard.
var constraintColumns = map[string]string{
	"users_pkey":                 "id",
	"users_username_key":         "username",
	"users_email_key":            "email",
	"users_reset_token_hash_key": "reset_token_hash",
}

// translate maps PostgreSQL errors onto the account store errors.
func translate(err error, operation string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return oops.Code("USER_UNIQUE_VIOLATION").
				With("operation", operation).
				With("constraint", pgErr.ConstraintName).
				Wrap(&account.UniqueViolation{Column: constraintColumns[pgErr.ConstraintName]})
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
			return oops.Code("STORE_CONFLICT").
				With("operation", operation).
				With("pg_code", pgErr.Code).
				Wrap(account.ErrConflict)
		}
	}
	return oops.Code("STORE_QUERY_FAILED").With("operation", operation).Wrap(err)
}

const userColumns = `id, username, email, display_name, password_hash, role, tier,
	password_updated_at, failed_login_attempts, is_locked, locked_until,
	reset_token_hash, reset_token_expiry, created_at, updated_at`

type tx struct {
	tx   pgx.Tx
	lock bool
}

func (t *tx) selectUser(where string) string {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	if t.lock {
		q += ` FOR UPDATE`
	}
	return q
}

func (t *tx) CreateUser(ctx context.Context, u *account.User) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users (
			id, username, email, display_name, password_hash, role, tier,
			password_updated_at, failed_login_attempts, is_locked, locked_until,
			reset_token_hash, reset_token_expiry, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		u.ID.String(),
		u.Username,
		u.Email,
		u.DisplayName,
		u.PasswordHash,
		u.Role.String(),
		u.Tier.String(),
		u.PasswordUpdatedAt,
		u.FailedLoginAttempts,
		u.IsLocked,
		u.LockedUntil,
		u.ResetTokenHash,
		u.ResetTokenExpiry,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return translate(err, "insert user")
	}
	return nil
}

func (t *tx) GetUserByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	row := t.tx.QueryRow(ctx, t.selectUser(`id = $1`), id.String())
	return t.scanOne(row, "get user by id", "id", id.String())
}

func (t *tx) GetUserByIdentifier(ctx context.Context, identifier string) (*account.User, error) {
	row := t.tx.QueryRow(ctx, t.selectUser(`LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)`), identifier)
	return t.scanOne(row, "get user by identifier", "identifier", identifier)
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (*account.User, error) {
	row := t.tx.QueryRow(ctx, t.selectUser(`LOWER(email) = LOWER($1)`), email)
	return t.scanOne(row, "get user by email", "email", email)
}

func (t *tx) GetUserByResetToken(ctx context.Context, tokenHash string) (*account.User, error) {
	row := t.tx.QueryRow(ctx, t.selectUser(`reset_token_hash = $1`), tokenHash)
	return t.scanOne(row, "get user by reset token", "reset_token_hash", tokenHash)
}

func (t *tx) UserExists(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($2)
		)
	`, username, email).Scan(&exists)
	if err != nil {
		return false, translate(err, "check user exists")
	}
	return exists, nil
}

func (t *tx) UpdateUser(ctx context.Context, u *account.User) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE users SET
			username = $2,
			email = $3,
			display_name = $4,
			password_hash = $5,
			role = $6,
			tier = $7,
			password_updated_at = $8,
			failed_login_attempts = $9,
			is_locked = $10,
			locked_until = $11,
			reset_token_hash = $12,
			reset_token_expiry = $13,
			updated_at = $14
		WHERE id = $1
	`,
		u.ID.String(),
		u.Username,
		u.Email,
		u.DisplayName,
		u.PasswordHash,
		u.Role.String(),
		u.Tier.String(),
		u.PasswordUpdatedAt,
		u.FailedLoginAttempts,
		u.IsLocked,
		u.LockedUntil,
		u.ResetTokenHash,
		u.ResetTokenExpiry,
		u.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update user")
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", u.ID.String()).
			Wrap(account.ErrNotFound)
	}
	return nil
}

func (t *tx) AppendLoginLog(ctx context.Context, entry *account.LoginLog) error {
	var userID *string
	if entry.UserID != nil {
		s := entry.UserID.String()
		userID = &s
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO login_logs (id, identifier, user_id, success, origin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.ID.String(),
		entry.Identifier,
		userID,
		entry.Success,
		entry.Origin,
		entry.Timestamp,
	)
	if err != nil {
		return translate(err, "insert login log")
	}
	return nil
}

func (t *tx) scanOne(row pgx.Row, operation, key, value string) (*account.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With(key, value).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return nil, translate(err, operation)
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", operation).
			With(key, value).
			Wrap(err)
	}
	return u, nil
}

// scanUser reads one users row in userColumns order.
func scanUser(row pgx.Row) (*account.User, error) {
	var (
		u          account.User
		idStr      string
		roleName   string
		tierName   string
		lockedAt   *time.Time
		tokenHash  *string
		tokenUntil *time.Time
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
	if err != nil {
		return nil, err
	}

	if u.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.With("id", idStr).Wrapf(err, "corrupt user id")
	}
	if u.Role, err = account.ParseRole(roleName); err != nil {
		return nil, err
	}
	if u.Tier, err = account.ParseTier(tierName); err != nil {
		return nil, err
	}
	u.LockedUntil = lockedAt
	u.ResetTokenHash = tokenHash
	u.ResetTokenExpiry = tokenUntil
	return &u, nil
}
