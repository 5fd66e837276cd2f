// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account implements the account-security gateway: login decisions,
// brute-force lockout, password lifecycle and the password reset protocol.
//
// # Domain Types
//
// Users are created through NewUser, which validates identity fields and
// forces the role chosen by the creation path (USER for self-registration,
// ADMIN for the administrative path). Role and Tier are closed sets with a
// single text mapping (ParseRole, ParseTier).
//
// # Services
//
//   - AuthService - registration, admin creation and login decisions
//   - PasswordResetService - reset token issue, verification and consumption
//   - AdminService - tier assignment, unlock and read-only projections
//   - Gateway - the facade exposed to the API layer
//
// Every operation runs as one unit of work inside Store.WithTx. Lost-update
// conflicts reported by a store are retried by re-running the whole unit.
package account
