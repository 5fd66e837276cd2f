// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// MaxTokenAttempts bounds reset code regeneration after collisions.
const MaxTokenAttempts = 5

// errTokenCollision marks an attempt whose code hash is held by another user.
var errTokenCollision = errors.New("reset token collision")

// PasswordResetService runs the password reset token protocol.
type PasswordResetService struct {
	store          Store
	hasher         PasswordHasher
	notifier       Notifier
	units          unitRunner
	logger         *slog.Logger
	now            Clock
	generateToken  func() (string, string, error)
	concealUnknown bool
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	store Store,
	hasher PasswordHasher,
	notifier Notifier,
	opts ...Option,
) (*PasswordResetService, error) {
	if store == nil {
		return nil, oops.Code("RESET_INVALID_SERVICE").Errorf("store cannot be nil")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_INVALID_SERVICE").Errorf("hasher cannot be nil")
	}
	if notifier == nil {
		return nil, oops.Code("RESET_INVALID_SERVICE").Errorf("notifier cannot be nil")
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &PasswordResetService{
		store:          store,
		hasher:         hasher,
		notifier:       notifier,
		units:          newUnitRunner(store, o),
		logger:         o.logger,
		now:            o.clock,
		generateToken:  o.generateToken,
		concealUnknown: o.concealUnknown,
	}, nil
}

// RequestPasswordReset issues a reset code for the account registered
// under email and hands it to the notifier after the code is persisted.
//
// A new request replaces any earlier code. When the notifier fails the code
// stays valid and ErrDelivery is returned.
func (s *PasswordResetService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	var (
		user  *User
		token string
	)
	for attempt := 1; ; attempt++ {
		var err error
		user, token, err = s.issueToken(ctx, email)
		if err == nil {
			break
		}
		if errors.Is(err, ErrNotFound) {
			recordReset("request", StatusNotFound)
			if s.concealUnknown {
				s.logger.DebugContext(ctx, "password reset requested for unknown email")
				return nil
			}
			return oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(ErrNotFound)
		}
		if !errors.Is(err, errTokenCollision) {
			recordReset("request", StatusError)
			return err
		}
		if attempt >= MaxTokenAttempts {
			recordReset("request", StatusError)
			return oops.Code("ACCOUNT_TRANSIENT").
				With("operation", "request password reset").
				With("attempts", attempt).
				Wrap(ErrTransient)
		}
		s.logger.DebugContext(ctx, "reset code collision, regenerating", "attempt", attempt)
	}

	if err := s.notifier.Send(ctx, user.Email, token); err != nil {
		recordReset("request", StatusDelivery)
		return oops.Code("RESET_DELIVERY_FAILED").
			With("user_id", user.ID.String()).
			With("cause", err.Error()).
			Wrap(ErrDelivery)
	}

	recordReset("request", StatusSuccess)
	s.logger.InfoContext(ctx, "password reset code issued", "user_id", user.ID.String())
	return nil
}

// issueToken persists a fresh code for the user with email in one unit of work.
func (s *PasswordResetService) issueToken(ctx context.Context, email string) (*User, string, error) {
	var (
		user  *User
		token string
	)
	err := s.units.run(ctx, "request password reset", TxOptions{}, func(ctx context.Context, tx Tx) error {
		u, err := tx.GetUserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "get user by email").
				Wrap(err)
		}

		tok, hash, err := s.generateToken()
		if err != nil {
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "generate reset token").
				Wrap(err)
		}

		holder, err := tx.GetUserByResetToken(ctx, hash)
		switch {
		case err == nil && holder.ID != u.ID:
			return errTokenCollision
		case err != nil && !errors.Is(err, ErrNotFound):
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "check reset token").
				Wrap(err)
		}

		now := s.now().UTC()
		expiry := now.Add(ResetTokenExpiry)
		u.ResetTokenHash = &hash
		u.ResetTokenExpiry = &expiry
		u.UpdatedAt = now

		if err := tx.UpdateUser(ctx, u); err != nil {
			if IsUniqueViolation(err, "reset_token_hash") {
				return errTokenCollision
			}
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "store reset token").
				Wrap(err)
		}
		user, token = u, tok
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// VerifyResetToken reports whether token is a live reset code. It never
// modifies state and may be called any number of times.
func (s *PasswordResetService) VerifyResetToken(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		recordReset("verify", StatusInvalid)
		return false, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpired)
	}

	hash := HashResetToken(token)
	usable := false
	err := s.units.run(ctx, "verify reset token", TxOptions{ReadOnly: true}, func(ctx context.Context, tx Tx) error {
		u, err := tx.GetUserByResetToken(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			usable = false
			return nil
		}
		if err != nil {
			return oops.Code("RESET_VALIDATE_FAILED").
				With("operation", "get user by reset token").
				Wrap(err)
		}
		usable = resetTokenUsable(u, s.now())
		return nil
	})
	if err != nil {
		recordReset("verify", StatusError)
		return false, err
	}
	if !usable {
		recordReset("verify", StatusInvalid)
		return false, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpired)
	}
	recordReset("verify", StatusSuccess)
	return true, nil
}

// ResetPassword sets a new password for the holder of token.
// The password policy is checked before the token is looked up.
// Returns (false, nil) for unknown or expired tokens.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	if err := checkPassword(newPassword); err != nil {
		recordReset("complete", StatusInvalid)
		return false, oops.Code("ACCOUNT_PASSWORD_POLICY").Wrap(err)
	}
	if strings.TrimSpace(token) == "" {
		recordReset("complete", StatusInvalid)
		return false, nil
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	tokenHash := HashResetToken(token)
	var updated *User
	err = s.units.run(ctx, "reset password", TxOptions{}, func(ctx context.Context, tx Tx) error {
		updated = nil
		u, err := tx.GetUserByResetToken(ctx, tokenHash)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "get user by reset token").
				Wrap(err)
		}

		now := s.now().UTC()
		if !resetTokenUsable(u, now) {
			return nil
		}

		u.PasswordHash = newHash
		u.PasswordUpdatedAt = now
		u.ResetTokenHash = nil
		u.ResetTokenExpiry = nil
		u.UpdatedAt = now
		if err := tx.UpdateUser(ctx, u); err != nil {
			return oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "update user").
				With("user_id", u.ID.String()).
				Wrap(err)
		}
		updated = u
		return nil
	})
	if err != nil {
		recordReset("complete", StatusError)
		return false, err
	}
	if updated == nil {
		recordReset("complete", StatusInvalid)
		return false, nil
	}

	recordReset("complete", StatusSuccess)
	s.logger.InfoContext(ctx, "password reset completed", "user_id", updated.ID.String())
	return true, nil
}
