// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/account/sqlite"
	"github.com/holomush/acctgate/internal/store"
)

// openMigrated returns a Store over a fresh, fully migrated database file.
func openMigrated(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")

	migrator, err := store.NewMigrator("sqlite://" + path)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUser(t *testing.T, username, email string) *account.User {
	t.Helper()
	u, err := account.NewUser(account.Registration{Username: username, Email: email}, account.RoleUser, "$argon2id$hash", time.Now())
	require.NoError(t, err)
	return u
}

func write(t *testing.T, s *sqlite.Store, fn func(ctx context.Context, tx account.Tx) error) error {
	t.Helper()
	return s.WithTx(context.Background(), account.TxOptions{}, fn)
}

func TestFile_UserRoundTrip(t *testing.T) {
	s := openMigrated(t)
	u := newUser(t, "Alice", "alice@example.com")
	until := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Microsecond)

	require.NoError(t, write(t, s, func(ctx context.Context, tx account.Tx) error {
		return tx.CreateUser(ctx, u)
	}))

	require.NoError(t, write(t, s, func(ctx context.Context, tx account.Tx) error {
		got, err := tx.GetUserByIdentifier(ctx, "ALICE")
		if err != nil {
			return err
		}
		got.FailedLoginAttempts = 5
		got.IsLocked = true
		got.LockedUntil = &until
		return tx.UpdateUser(ctx, got)
	}))

	err := s.WithTx(context.Background(), account.TxOptions{ReadOnly: true}, func(ctx context.Context, tx account.Tx) error {
		got, err := tx.GetUserByEmail(ctx, "Alice@Example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, 5, got.FailedLoginAttempts)
		assert.True(t, got.IsLocked)
		require.NotNil(t, got.LockedUntil)
		assert.True(t, until.Equal(*got.LockedUntil))
		assert.Nil(t, got.ResetTokenHash)
		return nil
	})
	require.NoError(t, err)
}

func TestFile_UniqueViolations(t *testing.T) {
	s := openMigrated(t)
	require.NoError(t, write(t, s, func(ctx context.Context, tx account.Tx) error {
		return tx.CreateUser(ctx, newUser(t, "alice", "alice@example.com"))
	}))

	err := write(t, s, func(ctx context.Context, tx account.Tx) error {
		return tx.CreateUser(ctx, newUser(t, "bob", "ALICE@example.com"))
	})
	assert.True(t, account.IsUniqueViolation(err, "email"), "got %v", err)

	err = write(t, s, func(ctx context.Context, tx account.Tx) error {
		return tx.CreateUser(ctx, newUser(t, "Alice", "other@example.com"))
	})
	assert.True(t, account.IsUniqueViolation(err, "username"), "got %v", err)
}

func TestFile_ResetTokenUnique(t *testing.T) {
	s := openMigrated(t)
	a := newUser(t, "alice", "alice@example.com")
	b := newUser(t, "bob", "bob@example.com")
	hash := "deadbeef"
	expiry := time.Now().Add(15 * time.Minute)

	require.NoError(t, write(t, s, func(ctx context.Context, tx account.Tx) error {
		if err := tx.CreateUser(ctx, a); err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, b); err != nil {
			return err
		}
		a.ResetTokenHash = &hash
		a.ResetTokenExpiry = &expiry
		return tx.UpdateUser(ctx, a)
	}))

	err := write(t, s, func(ctx context.Context, tx account.Tx) error {
		b.ResetTokenHash = &hash
		b.ResetTokenExpiry = &expiry
		return tx.UpdateUser(ctx, b)
	})
	assert.True(t, account.IsUniqueViolation(err, "reset_token_hash"), "got %v", err)

	err = s.WithTx(context.Background(), account.TxOptions{ReadOnly: true}, func(ctx context.Context, tx account.Tx) error {
		got, err := tx.GetUserByResetToken(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestFile_LoginLogSurvivesWithoutUser(t *testing.T) {
	s := openMigrated(t)
	err := write(t, s, func(ctx context.Context, tx account.Tx) error {
		return tx.AppendLoginLog(ctx, &account.LoginLog{
			ID:         ulid.Make(),
			Identifier: "ghost",
			Timestamp:  time.Now(),
		})
	})
	require.NoError(t, err)
}

func TestFile_GatewayFlow(t *testing.T) {
	s := openMigrated(t)
	hasher := account.NewArgon2idHasherWithParams(account.Argon2Params{
		Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32,
	})
	svc, err := account.NewAuthService(s, hasher)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.RegisterCustomer(ctx, account.Registration{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "Str0ng!pass",
	})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "carol@example.com", "Str0ng!pass", "")
	require.NoError(t, err)
	assert.Equal(t, account.OutcomeAuthenticated, res.Outcome())
}
