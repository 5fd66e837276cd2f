// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore provides an in-process account.Store.
//
// Units of work are serialized by a store-wide lock and run against a
// private copy of the data that replaces the shared state only on commit.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/acctgate/internal/account"
)

// Store is a memory-backed account.Store.
type Store struct {
	mu    sync.RWMutex
	users map[ulid.ULID]*account.User
	logs  []account.LoginLog
}

var _ account.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{users: make(map[ulid.ULID]*account.User)}
}

// WithTx implements account.Store.
func (s *Store) WithTx(ctx context.Context, opts account.TxOptions, fn func(ctx context.Context, tx account.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if opts.ReadOnly {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return fn(ctx, &tx{users: s.users, readOnly: true})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := make(map[ulid.ULID]*account.User, len(s.users))
	for id, u := range s.users {
		working[id] = u.Clone()
	}
	t := &tx{users: working}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.users = working
	s.logs = append(s.logs, t.logs...)
	return nil
}

// LoginLogs returns a copy of every committed login log entry in append order.
func (s *Store) LoginLogs() []account.LoginLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]account.LoginLog, len(s.logs))
	copy(out, s.logs)
	return out
}

type tx struct {
	users    map[ulid.ULID]*account.User
	logs     []account.LoginLog
	readOnly bool
}

var errReadOnly = oops.Code("STORE_READ_ONLY").Errorf("write in read-only transaction")

func (t *tx) CreateUser(_ context.Context, u *account.User) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.users[u.ID]; ok {
		return &account.UniqueViolation{Column: "id"}
	}
	if err := t.checkUnique(u); err != nil {
		return err
	}
	t.users[u.ID] = u.Clone()
	return nil
}

func (t *tx) GetUserByID(_ context.Context, id ulid.ULID) (*account.User, error) {
	if u, ok := t.users[id]; ok {
		return u.Clone(), nil
	}
	return nil, account.ErrNotFound
}

func (t *tx) GetUserByIdentifier(_ context.Context, identifier string) (*account.User, error) {
	return t.find(func(u *account.User) bool {
		return strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier)
	})
}

func (t *tx) GetUserByEmail(_ context.Context, email string) (*account.User, error) {
	return t.find(func(u *account.User) bool {
		return strings.EqualFold(u.Email, email)
	})
}

func (t *tx) GetUserByResetToken(_ context.Context, tokenHash string) (*account.User, error) {
	return t.find(func(u *account.User) bool {
		return u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash
	})
}

func (t *tx) UserExists(_ context.Context, username, email string) (bool, error) {
	_, err := t.find(func(u *account.User) bool {
		return strings.EqualFold(u.Username, username) || strings.EqualFold(u.Email, email)
	})
	if err != nil {
		return false, nil //nolint:nilerr // not found means free
	}
	return true, nil
}

func (t *tx) UpdateUser(_ context.Context, u *account.User) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.users[u.ID]; !ok {
		return account.ErrNotFound
	}
	if err := t.checkUnique(u); err != nil {
		return err
	}
	t.users[u.ID] = u.Clone()
	return nil
}

func (t *tx) AppendLoginLog(_ context.Context, entry *account.LoginLog) error {
	if t.readOnly {
		return errReadOnly
	}
	t.logs = append(t.logs, *entry)
	return nil
}

func (t *tx) find(match func(u *account.User) bool) (*account.User, error) {
	for _, u := range t.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, account.ErrNotFound
}

// checkUnique enforces the unique indexes against every other user.
func (t *tx) checkUnique(u *account.User) error {
	for id, other := range t.users {
		if id == u.ID {
			continue
		}
		switch {
		case strings.EqualFold(other.Username, u.Username):
			return &account.UniqueViolation{Column: "username"}
		case strings.EqualFold(other.Email, u.Email):
			return &account.UniqueViolation{Column: "email"}
		case u.ResetTokenHash != nil && other.ResetTokenHash != nil && *u.ResetTokenHash == *other.ResetTokenHash:
			return &account.UniqueViolation{Column: "reset_token_hash"}
		}
	}
	return nil
}
