// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AdminService assigns tiers and performs administrative account actions.
type AdminService struct {
	units  unitRunner
	logger *slog.Logger
	now    Clock
}

// NewAdminService creates a new AdminService.
func NewAdminService(store Store, opts ...Option) (*AdminService, error) {
	if store == nil {
		return nil, oops.Code("ACCOUNT_INVALID_SERVICE").Errorf("store cannot be nil")
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &AdminService{
		units:  newUnitRunner(store, o),
		logger: o.logger,
		now:    o.clock,
	}, nil
}

// AssignTier sets the tier of user id. The tier name is parsed before the
// user is looked up. Returns (nil, nil) when no such user exists.
func (s *AdminService) AssignTier(ctx context.Context, id ulid.ULID, tierName string) (*User, error) {
	tier, err := ParseTier(tierName)
	if err != nil {
		return nil, err
	}

	user, err := s.mutate(ctx, "assign tier", id, func(u *User) {
		u.Tier = tier
	})
	if err != nil || user == nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tier assigned",
		"user_id", id.String(),
		"tier", tier.String())
	return user, nil
}

// UnlockUser clears the lock and failure counter of user id ahead of the
// lock deadline. Returns (nil, nil) when no such user exists.
func (s *AdminService) UnlockUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.mutate(ctx, "unlock user", id, func(u *User) {
		clearLock(u, s.now().UTC())
	})
	if err != nil || user == nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account unlocked by administrator", "user_id", id.String())
	return user, nil
}

// GetUser returns the current projection of user id.
func (s *AdminService) GetUser(ctx context.Context, id ulid.ULID) (*User, error) {
	var user *User
	err := s.units.run(ctx, "get user", TxOptions{ReadOnly: true}, func(ctx context.Context, tx Tx) error {
		u, err := tx.GetUserByID(ctx, id)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("ACCOUNT_NOT_FOUND").With("user_id", id.String()).Wrap(ErrNotFound)
		}
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return user.Clone(), nil
}

// mutate loads user id, applies change and persists the result.
func (s *AdminService) mutate(ctx context.Context, operation string, id ulid.ULID, change func(u *User)) (*User, error) {
	var user *User
	err := s.units.run(ctx, operation, TxOptions{}, func(ctx context.Context, tx Tx) error {
		user = nil
		u, err := tx.GetUserByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return oops.Code("ACCOUNT_UPDATE_FAILED").
				With("operation", operation).
				With("user_id", id.String()).
				Wrap(err)
		}
		change(u)
		u.UpdatedAt = s.now().UTC()
		if err := tx.UpdateUser(ctx, u); err != nil {
			return oops.Code("ACCOUNT_UPDATE_FAILED").
				With("operation", operation).
				With("user_id", id.String()).
				Wrap(err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return user.Clone(), nil
}
