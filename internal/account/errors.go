// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"
	"strings"
)

// Errors exposed to callers. Services wrap them with oops codes, so match
// with errors.Is / errors.As.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUniquenessConflict is returned when a username or email is taken.
	ErrUniquenessConflict = errors.New("username or email already in use")

	// ErrInvalidTierName is returned for tier names outside the closed set.
	ErrInvalidTierName = errors.New("invalid tier name")

	// ErrInvalidRoleName is returned for role names outside the closed set.
	ErrInvalidRoleName = errors.New("invalid role name")

	// ErrInvalidOrExpired is returned when a reset token is unknown or expired.
	ErrInvalidOrExpired = errors.New("invalid or expired token")

	// ErrDelivery is returned when the notifier fails after the reset token
	// was committed. The token stays valid.
	ErrDelivery = errors.New("reset code delivery failed")

	// ErrTransient is returned when a unit of work could not complete because
	// of store contention or timeouts. Callers may retry.
	ErrTransient = errors.New("temporary failure, retry later")
)

// Store-level errors. Adapters translate driver errors into these; services
// never surface them raw.
var (
	// ErrConflict signals a lost update (serialization failure, deadlock,
	// busy database). The unit of work is retried.
	ErrConflict = errors.New("write conflict")
)

// UniqueViolation reports a unique index collision on Column.
type UniqueViolation struct {
	Column string
}

func (e *UniqueViolation) Error() string {
	if e.Column == "" {
		return "unique constraint violated"
	}
	return "unique constraint violated on " + e.Column
}

// IsUniqueViolation reports whether err is a unique violation on column.
// An empty column matches any column.
func IsUniqueViolation(err error, column string) bool {
	var uv *UniqueViolation
	if !errors.As(err, &uv) {
		return false
	}
	return column == "" || uv.Column == column
}

// PolicyError carries every password policy violation found.
type PolicyError struct {
	Violations []Violation
}

func (e *PolicyError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return "password does not meet complexity requirements: " + strings.Join(msgs, "; ")
}
