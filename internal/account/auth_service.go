// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified against when an identifier matches no user
// so that unknown and known identifiers take comparable time.
// It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// dummyPassword is hashed with the configured hasher to build the
// per-service timing hash.
const dummyPassword = "not-a-real-password-Xx1!"

// AuthService registers accounts and decides logins.
type AuthService struct {
	store  Store
	hasher PasswordHasher
	units  unitRunner
	logger *slog.Logger
	now    Clock

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(store Store, hasher PasswordHasher, opts ...Option) (*AuthService, error) {
	if store == nil {
		return nil, oops.Code("ACCOUNT_INVALID_SERVICE").Errorf("store cannot be nil")
	}
	if hasher == nil {
		return nil, oops.Code("ACCOUNT_INVALID_SERVICE").Errorf("hasher cannot be nil")
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		store:  store,
		hasher: hasher,
		units:  newUnitRunner(store, o),
		logger: o.logger,
		now:    o.clock,
	}, nil
}

// RegisterCustomer creates a USER account in the PENDING tier.
func (s *AuthService) RegisterCustomer(ctx context.Context, reg Registration) (*User, error) {
	return s.register(ctx, reg, RoleUser)
}

// CreateAdmin creates an ADMIN account in the PENDING tier.
func (s *AuthService) CreateAdmin(ctx context.Context, reg Registration) (*User, error) {
	return s.register(ctx, reg, RoleAdmin)
}

func (s *AuthService) register(ctx context.Context, reg Registration, role Role) (*User, error) {
	if err := checkPassword(reg.Password); err != nil {
		return nil, oops.Code("ACCOUNT_PASSWORD_POLICY").
			With("username", reg.Username).
			Wrap(err)
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(reg, role, hash, s.now())
	if err != nil {
		return nil, err
	}

	err = s.units.run(ctx, "register", TxOptions{}, func(ctx context.Context, tx Tx) error {
		exists, err := tx.UserExists(ctx, user.Username, user.Email)
		if err != nil {
			return oops.Code("ACCOUNT_REGISTER_FAILED").
				With("operation", "check existing user").
				Wrap(err)
		}
		if exists {
			return ErrUniquenessConflict
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			if IsUniqueViolation(err, "") {
				return ErrUniquenessConflict
			}
			return oops.Code("ACCOUNT_REGISTER_FAILED").
				With("operation", "create user").
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUniquenessConflict) {
			return nil, oops.Code("ACCOUNT_CONFLICT").
				With("username", reg.Username).
				Wrap(ErrUniquenessConflict)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "account registered",
		"user_id", user.ID.String(),
		"role", user.Role.String())
	return user.Clone(), nil
}

// Login decides whether identifier and password authenticate a user.
// identifier matches either the username or the email address.
// Every decision appends a LoginLog entry except PasswordExpired.
//
// Failures are returned as LoginResult variants; the error is non-nil only
// when the decision could not be made.
func (s *AuthService) Login(ctx context.Context, identifier, password, origin string) (LoginResult, error) {
	var result LoginResult
	err := s.units.run(ctx, "login", TxOptions{}, func(ctx context.Context, tx Tx) error {
		r, err := s.decide(ctx, tx, identifier, password, origin)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}

	recordLogin(result.Outcome())
	switch r := result.(type) {
	case Authenticated:
		s.logger.InfoContext(ctx, "login succeeded", "user_id", r.User.ID.String())
	case AccountLocked:
		s.logger.WarnContext(ctx, "login rejected, account locked",
			"identifier", identifier,
			"remaining_minutes", r.RemainingMinutes)
	case PasswordExpired:
		s.logger.InfoContext(ctx, "login rejected, password expired", "user_id", r.User.ID.String())
	default:
		s.logger.DebugContext(ctx, "login rejected, invalid credentials", "identifier", identifier)
	}
	return result, nil
}

// decide runs one login decision inside tx. Rejections return a nil error
// so that counter and log writes commit.
func (s *AuthService) decide(ctx context.Context, tx Tx, identifier, password, origin string) (LoginResult, error) {
	now := s.now().UTC()

	user, err := tx.GetUserByIdentifier(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		_, _ = s.hasher.Verify(password, s.timingHash()) //nolint:errcheck // timing only
		if err := s.appendLog(ctx, tx, newLoginLog(identifier, nil, false, origin, now)); err != nil {
			return nil, err
		}
		return InvalidCredentials{}, nil
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOGIN_FAILED").
			With("operation", "get user by identifier").
			Wrap(err)
	}

	dirty := false
	if user.IsLocked {
		if lockActive(user, now) {
			if err := s.appendLog(ctx, tx, newLoginLog(identifier, user, false, origin, now)); err != nil {
				return nil, err
			}
			return AccountLocked{RemainingMinutes: remainingMinutes(user, now)}, nil
		}
		clearLock(user, now)
		dirty = true
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if !valid {
		justLocked := recordFailure(user, now)
		if err := s.updateUser(ctx, tx, user); err != nil {
			return nil, err
		}
		if err := s.appendLog(ctx, tx, newLoginLog(identifier, user, false, origin, now)); err != nil {
			return nil, err
		}
		if justLocked {
			Lockouts.Inc()
			return AccountLocked{RemainingMinutes: int(LockoutDuration / time.Minute)}, nil
		}
		return InvalidCredentials{}, nil
	}

	if passwordExpired(user, now) {
		if dirty {
			if err := s.updateUser(ctx, tx, user); err != nil {
				return nil, err
			}
		}
		return PasswordExpired{User: user.Clone()}, nil
	}

	clearLock(user, now)
	if err := s.updateUser(ctx, tx, user); err != nil {
		return nil, err
	}
	if err := s.appendLog(ctx, tx, newLoginLog(identifier, user, true, origin, now)); err != nil {
		return nil, err
	}
	return Authenticated{User: user.Clone()}, nil
}

func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash = dummyPasswordHash
		if h, err := s.hasher.Hash(dummyPassword); err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *AuthService) updateUser(ctx context.Context, tx Tx, user *User) error {
	if err := tx.UpdateUser(ctx, user); err != nil {
		return oops.Code("ACCOUNT_LOGIN_FAILED").
			With("operation", "update user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

func (s *AuthService) appendLog(ctx context.Context, tx Tx, entry *LoginLog) error {
	if err := tx.AppendLoginLog(ctx, entry); err != nil {
		return oops.Code("ACCOUNT_LOGIN_FAILED").
			With("operation", "append login log").
			Wrap(err)
	}
	return nil
}
