// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/account/memstore"
	"github.com/holomush/acctgate/pkg/errutil"
)

func TestNewAuthService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		store       account.Store
		hasher      account.PasswordHasher
		opts        []account.Option
		expectError string
	}{
		{
			name:        "nil store",
			hasher:      fastHasher(),
			expectError: "store cannot be nil",
		},
		{
			name:        "nil hasher",
			store:       memstore.New(),
			expectError: "hasher cannot be nil",
		},
		{
			name:        "nil logger",
			store:       memstore.New(),
			hasher:      fastHasher(),
			opts:        []account.Option{account.WithLogger(nil)},
			expectError: "logger cannot be nil",
		},
		{
			name:        "nil clock",
			store:       memstore.New(),
			hasher:      fastHasher(),
			opts:        []account.Option{account.WithClock(nil)},
			expectError: "clock cannot be nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := account.NewAuthService(tt.store, tt.hasher, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("customer gets USER role and PENDING tier", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.gw.RegisterCustomer(ctx, account.Registration{
			Username:    "alice",
			Email:       "Alice@Example.com",
			DisplayName: "Alice",
			Password:    strongPassword,
		})
		require.NoError(t, err)

		assert.Equal(t, account.RoleUser, u.Role)
		assert.Equal(t, account.TierPending, u.Tier)
		assert.Equal(t, "alice@example.com", u.Email)
		assert.Equal(t, "Alice", u.DisplayName)
		assert.Equal(t, f.clock.Now(), u.PasswordUpdatedAt)
		assert.Zero(t, u.FailedLoginAttempts)
		assert.False(t, u.IsLocked)
		assert.NotEqual(t, strongPassword, u.PasswordHash)
	})

	t.Run("admin path gets ADMIN role and PENDING tier", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.gw.CreateAdmin(ctx, account.Registration{
			Username: "root",
			Email:    "root@example.com",
			Password: strongPassword,
		})
		require.NoError(t, err)
		assert.Equal(t, account.RoleAdmin, u.Role)
		assert.Equal(t, account.TierPending, u.Tier)
	})

	t.Run("weak password reports every violation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.gw.RegisterCustomer(ctx, account.Registration{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "abc",
		})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_PASSWORD_POLICY")

		var policyErr *account.PolicyError
		require.ErrorAs(t, err, &policyErr)
		rules := make([]account.Rule, 0, len(policyErr.Violations))
		for _, v := range policyErr.Violations {
			rules = append(rules, v.Rule)
		}
		assert.ElementsMatch(t, []account.Rule{
			account.RuleMinLength, account.RuleUppercase, account.RuleDigit, account.RuleSpecial,
		}, rules)
	})

	t.Run("duplicate username or email conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice")

		tests := []struct {
			name string
			reg  account.Registration
		}{
			{"same username", account.Registration{Username: "alice", Email: "other@example.com", Password: strongPassword}},
			{"username differs in case", account.Registration{Username: "ALICE", Email: "other@example.com", Password: strongPassword}},
			{"same email", account.Registration{Username: "bob", Email: "alice@example.com", Password: strongPassword}},
			{"email differs in case", account.Registration{Username: "bob", Email: "ALICE@example.com", Password: strongPassword}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.gw.CreateAdmin(ctx, tt.reg)
				require.Error(t, err)
				assert.ErrorIs(t, err, account.ErrUniquenessConflict)
				errutil.AssertErrorCode(t, err, "ACCOUNT_CONFLICT")
			})
		}
	})

	t.Run("invalid username is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.gw.RegisterCustomer(ctx, account.Registration{
			Username: "1bad",
			Email:    "bad@example.com",
			Password: strongPassword,
		})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_USERNAME")
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("authenticates by username or email", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")

		for _, identifier := range []string{"alice", "alice@example.com"} {
			r, err := f.gw.Login(ctx, identifier, strongPassword, "10.0.0.1")
			require.NoError(t, err)
			require.IsType(t, account.Authenticated{}, r)
			assert.Equal(t, alice.ID, r.(account.Authenticated).User.ID)
		}

		logs := f.store.LoginLogs()
		require.Len(t, logs, 2)
		for _, l := range logs {
			assert.True(t, l.Success)
			require.NotNil(t, l.UserID)
			assert.Equal(t, alice.ID, *l.UserID)
			require.NotNil(t, l.Origin)
			assert.Equal(t, "10.0.0.1", *l.Origin)
		}
	})

	t.Run("unknown identifier logs failure without user", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.gw.Login(ctx, "nobody", strongPassword, "")
		require.NoError(t, err)
		assert.Equal(t, account.InvalidCredentials{}, r)

		logs := f.store.LoginLogs()
		require.Len(t, logs, 1)
		assert.False(t, logs[0].Success)
		assert.Nil(t, logs[0].UserID)
		assert.Nil(t, logs[0].Origin)
		assert.Equal(t, "nobody", logs[0].Identifier)
	})

	t.Run("wrong password increments counter", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")

		r := f.failLogins(t, "alice", 2)
		assert.Equal(t, account.InvalidCredentials{}, r)
		assert.Equal(t, 2, f.user(t, alice).FailedLoginAttempts)

		logs := f.store.LoginLogs()
		require.Len(t, logs, 2)
		assert.False(t, logs[1].Success)
		require.NotNil(t, logs[1].UserID)
		assert.Equal(t, alice.ID, *logs[1].UserID)
	})

	t.Run("success resets counter", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")
		f.failLogins(t, "alice", 4)

		r, err := f.gw.Login(ctx, "alice", strongPassword, "")
		require.NoError(t, err)
		require.IsType(t, account.Authenticated{}, r)
		assert.Zero(t, f.user(t, alice).FailedLoginAttempts)
	})
}

func TestAuthService_Lockout(t *testing.T) {
	ctx := context.Background()

	t.Run("fifth failure locks for fifteen minutes", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")

		assert.Equal(t, account.InvalidCredentials{}, f.failLogins(t, "alice", 4))
		assert.Equal(t, account.AccountLocked{RemainingMinutes: 15}, f.failLogins(t, "alice", 1))

		got := f.user(t, alice)
		assert.True(t, got.IsLocked)
		assert.Equal(t, account.LockoutThreshold, got.FailedLoginAttempts)
		require.NotNil(t, got.LockedUntil)
		assert.Equal(t, f.clock.Now().Add(account.LockoutDuration), *got.LockedUntil)
	})

	t.Run("correct password is refused while locked", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")
		f.failLogins(t, "alice", 5)
		logsBefore := len(f.store.LoginLogs())

		f.clock.Advance(5*time.Minute + 30*time.Second)
		r, err := f.gw.Login(ctx, "alice", strongPassword, "")
		require.NoError(t, err)
		assert.Equal(t, account.AccountLocked{RemainingMinutes: 10}, r)

		got := f.user(t, alice)
		assert.Equal(t, 5, got.FailedLoginAttempts)
		assert.True(t, got.IsLocked)

		logs := f.store.LoginLogs()
		require.Len(t, logs, logsBefore+1)
		assert.False(t, logs[len(logs)-1].Success)
		require.NotNil(t, logs[len(logs)-1].UserID)
	})

	t.Run("wrong password while locked leaves counter", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")
		f.failLogins(t, "alice", 5)

		assert.Equal(t, account.AccountLocked{RemainingMinutes: 15}, f.failLogins(t, "alice", 3))
		assert.Equal(t, 5, f.user(t, alice).FailedLoginAttempts)
	})

	t.Run("lock expires at deadline", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")
		f.failLogins(t, "alice", 5)

		f.clock.Advance(account.LockoutDuration)
		r, err := f.gw.Login(ctx, "alice", strongPassword, "")
		require.NoError(t, err)
		require.IsType(t, account.Authenticated{}, r)

		got := f.user(t, alice)
		assert.False(t, got.IsLocked)
		assert.Nil(t, got.LockedUntil)
		assert.Zero(t, got.FailedLoginAttempts)
	})

	t.Run("failure after auto-unlock restarts count", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")
		f.failLogins(t, "alice", 5)

		f.clock.Advance(account.LockoutDuration + time.Second)
		assert.Equal(t, account.InvalidCredentials{}, f.failLogins(t, "alice", 1))

		got := f.user(t, alice)
		assert.False(t, got.IsLocked)
		assert.Equal(t, 1, got.FailedLoginAttempts)
	})
}

func TestAuthService_PasswordExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("exactly ninety days is still valid", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice")
		f.clock.Advance(account.PasswordMaxAge)

		r, err := f.gw.Login(ctx, "alice", strongPassword, "")
		require.NoError(t, err)
		assert.IsType(t, account.Authenticated{}, r)
	})

	t.Run("one second past ninety days expires", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")
		f.failLogins(t, "alice", 2)
		logsBefore := len(f.store.LoginLogs())

		f.clock.Advance(account.PasswordMaxAge + time.Second)
		r, err := f.gw.Login(ctx, "alice", strongPassword, "")
		require.NoError(t, err)
		require.IsType(t, account.PasswordExpired{}, r)
		assert.Equal(t, alice.ID, r.(account.PasswordExpired).User.ID)

		assert.Equal(t, 2, f.user(t, alice).FailedLoginAttempts)
		assert.Len(t, f.store.LoginLogs(), logsBefore)
	})

	t.Run("wrong password on expired account is a plain failure", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice")
		f.clock.Advance(account.PasswordMaxAge + time.Hour)

		assert.Equal(t, account.InvalidCredentials{}, f.failLogins(t, "alice", 1))
	})

	t.Run("auto-unlock persists even when password expired", func(t *testing.T) {
		f := newFixture(t)
		alice := f.register(t, "alice")
		f.clock.Advance(account.PasswordMaxAge)
		f.failLogins(t, "alice", 5)

		f.clock.Advance(account.LockoutDuration + time.Second)
		r, err := f.gw.Login(ctx, "alice", strongPassword, "")
		require.NoError(t, err)
		require.IsType(t, account.PasswordExpired{}, r)

		got := f.user(t, alice)
		assert.False(t, got.IsLocked)
		assert.Zero(t, got.FailedLoginAttempts)
	})
}

// conflictStore reports ErrConflict for the first n units of work.
type conflictStore struct {
	account.Store
	remaining int
	calls     int
}

func (s *conflictStore) WithTx(ctx context.Context, opts account.TxOptions, fn func(ctx context.Context, tx account.Tx) error) error {
	s.calls++
	if s.remaining > 0 {
		s.remaining--
		return account.ErrConflict
	}
	return s.Store.WithTx(ctx, opts, fn)
}

func TestAuthService_ConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("conflicts are retried", func(t *testing.T) {
		store := &conflictStore{Store: memstore.New(), remaining: 2}
		svc, err := account.NewAuthService(store, fastHasher(), account.WithConflictRetry(3, time.Millisecond))
		require.NoError(t, err)

		r, err := svc.Login(ctx, "nobody", strongPassword, "")
		require.NoError(t, err)
		assert.Equal(t, account.InvalidCredentials{}, r)
		assert.Equal(t, 3, store.calls)
	})

	t.Run("exhausted retries are transient", func(t *testing.T) {
		store := &conflictStore{Store: memstore.New(), remaining: 100}
		svc, err := account.NewAuthService(store, fastHasher(), account.WithConflictRetry(3, time.Millisecond))
		require.NoError(t, err)

		_, err = svc.Login(ctx, "nobody", strongPassword, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, account.ErrTransient)
		assert.False(t, errors.Is(err, account.ErrConflict))
		errutil.AssertErrorCode(t, err, "ACCOUNT_TRANSIENT")
		assert.Equal(t, 4, store.calls)
	})
}
