// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"math"
	"time"
)

// Lockout and password lifecycle configuration.
const (
	// LockoutThreshold is the number of consecutive failures that locks an account.
	LockoutThreshold = 5

	// LockoutDuration is how long an account stays locked.
	LockoutDuration = 15 * time.Minute

	// PasswordMaxAge is how long a password stays valid after it was set.
	PasswordMaxAge = 90 * 24 * time.Hour
)

// lockActive reports whether u is locked at now.
// A lock without a deadline is treated as active.
func lockActive(u *User, now time.Time) bool {
	if !u.IsLocked {
		return false
	}
	return u.LockedUntil == nil || now.Before(*u.LockedUntil)
}

// remainingMinutes returns the ceiling of whole minutes until the lock ends.
func remainingMinutes(u *User, now time.Time) int {
	if u.LockedUntil == nil {
		return int(LockoutDuration / time.Minute)
	}
	return int(math.Ceil(u.LockedUntil.Sub(now).Minutes()))
}

// recordFailure increments the failure counter and locks the account once
// the threshold is reached. Returns true when this call set the lock.
func recordFailure(u *User, now time.Time) bool {
	u.FailedLoginAttempts++
	u.UpdatedAt = now
	if u.FailedLoginAttempts < LockoutThreshold || u.IsLocked {
		return false
	}
	until := now.Add(LockoutDuration)
	u.IsLocked = true
	u.LockedUntil = &until
	return true
}

// clearLock resets the failure counter and lock state.
func clearLock(u *User, now time.Time) {
	u.FailedLoginAttempts = 0
	u.IsLocked = false
	u.LockedUntil = nil
	u.UpdatedAt = now
}

// passwordExpired reports whether u's password is older than PasswordMaxAge.
func passwordExpired(u *User, now time.Time) bool {
	return now.After(u.PasswordUpdatedAt.Add(PasswordMaxAge))
}
