// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Gateway exposes the account security operations to outer layers.
// All state lives in the Store; a Gateway is safe for concurrent use.
type Gateway struct {
	auth  *AuthService
	reset *PasswordResetService
	admin *AdminService
}

// NewGateway wires the account services over one store.
func NewGateway(store Store, hasher PasswordHasher, notifier Notifier, opts ...Option) (*Gateway, error) {
	auth, err := NewAuthService(store, hasher, opts...)
	if err != nil {
		return nil, err
	}
	reset, err := NewPasswordResetService(store, hasher, notifier, opts...)
	if err != nil {
		return nil, err
	}
	admin, err := NewAdminService(store, opts...)
	if err != nil {
		return nil, err
	}
	return &Gateway{auth: auth, reset: reset, admin: admin}, nil
}

// RegisterCustomer creates a customer account.
func (g *Gateway) RegisterCustomer(ctx context.Context, reg Registration) (*User, error) {
	return g.auth.RegisterCustomer(ctx, reg)
}

// CreateAdmin creates an administrator account.
func (g *Gateway) CreateAdmin(ctx context.Context, reg Registration) (*User, error) {
	return g.auth.CreateAdmin(ctx, reg)
}

// Login decides a login attempt.
func (g *Gateway) Login(ctx context.Context, identifier, password, origin string) (LoginResult, error) {
	return g.auth.Login(ctx, identifier, password, origin)
}

// RequestPasswordReset issues and delivers a reset code.
func (g *Gateway) RequestPasswordReset(ctx context.Context, email string) error {
	return g.reset.RequestPasswordReset(ctx, email)
}

// VerifyResetToken checks a reset code without consuming it.
func (g *Gateway) VerifyResetToken(ctx context.Context, token string) (bool, error) {
	return g.reset.VerifyResetToken(ctx, token)
}

// ResetPassword completes a reset.
func (g *Gateway) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	return g.reset.ResetPassword(ctx, token, newPassword)
}

// AssignTier sets a user's tier. Unknown users yield ErrNotFound.
func (g *Gateway) AssignTier(ctx context.Context, id ulid.ULID, tierName string) (*User, error) {
	u, err := g.admin.AssignTier(ctx, id, tierName)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("user_id", id.String()).Wrap(ErrNotFound)
	}
	return u, nil
}

// UnlockUser lifts a lockout early. Unknown users yield ErrNotFound.
func (g *Gateway) UnlockUser(ctx context.Context, id ulid.ULID) (*User, error) {
	u, err := g.admin.UnlockUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("user_id", id.String()).Wrap(ErrNotFound)
	}
	return u, nil
}

// GetUser returns a user projection.
func (g *Gateway) GetUser(ctx context.Context, id ulid.ULID) (*User, error) {
	return g.admin.GetUser(ctx, id)
}
