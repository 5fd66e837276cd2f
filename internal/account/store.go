// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// TxOptions configures a unit of work.
type TxOptions struct {
	// ReadOnly units never write and take no row locks.
	ReadOnly bool
}

// Store is the durable credential store. Every gateway operation runs inside
// exactly one WithTx call.
type Store interface {
	// WithTx opens a transaction, runs fn, and commits when fn returns nil.
	// It rolls back on error or panic and always releases the connection.
	// Adapters report lost updates as ErrConflict.
	WithTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of store operations available inside a unit of work.
// In read-write units every Get* call locks the returned row until the unit
// ends. Get* calls return ErrNotFound when nothing matches.
type Tx interface {
	// CreateUser inserts a new user. Collisions return *UniqueViolation.
	CreateUser(ctx context.Context, u *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetUserByIdentifier retrieves a user whose username OR email matches.
	GetUserByIdentifier(ctx context.Context, identifier string) (*User, error)

	// GetUserByEmail retrieves a user by email (case-insensitive).
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByResetToken retrieves a user by reset token hash.
	GetUserByResetToken(ctx context.Context, tokenHash string) (*User, error)

	// UserExists reports whether the username or email is taken.
	UserExists(ctx context.Context, username, email string) (bool, error)

	// UpdateUser persists every mutable field of u. Collisions return
	// *UniqueViolation.
	UpdateUser(ctx context.Context, u *User) error

	// AppendLoginLog inserts a login log entry.
	AppendLoginLog(ctx context.Context, entry *LoginLog) error
}

// Notifier delivers a reset code to an address.
type Notifier interface {
	// Send returns nil only when the code was handed off for delivery.
	Send(ctx context.Context, recipientEmail, token string) error
}
