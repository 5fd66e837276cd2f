// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the security role of a user.
type Role int

// Roles. The zero value is not a valid role.
const (
	RoleUser Role = iota + 1
	RoleAdmin
)

// Tier is the non-security service classification of a user.
type Tier int

// Tiers. The zero value is not a valid tier.
const (
	TierPending Tier = iota + 1
	TierSaver
	TierPremium
)

var roleNames = map[Role]string{
	RoleUser:  "USER",
	RoleAdmin: "ADMIN",
}

var tierNames = map[Tier]string{
	TierPending: "PENDING",
	TierSaver:   "SAVER",
	TierPremium: "PREMIUM",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "UNKNOWN"
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_ROLE").With("role", int(r)).Wrap(ErrInvalidRoleName)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole maps a role name (case-insensitive) onto the closed role set.
func ParseRole(name string) (Role, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for r, s := range roleNames {
		if s == n {
			return r, nil
		}
	}
	return 0, oops.Code("ACCOUNT_INVALID_ROLE").With("role", name).Wrap(ErrInvalidRoleName)
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Valid reports whether t is a member of the closed tier set.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_TIER").With("tier", int(t)).Wrap(ErrInvalidTierName)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier maps a tier name (case-insensitive) onto the closed tier set.
// Unknown names are never defaulted.
func ParseTier(name string) (Tier, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for t, s := range tierNames {
		if s == n {
			return t, nil
		}
	}
	return 0, oops.Code("ACCOUNT_INVALID_TIER").With("tier", name).Wrap(ErrInvalidTierName)
}

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 64
)

// usernameRegex matches usernames that start with a letter and contain only
// letters, numbers, dots, dashes and underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`)

// User is an account owned by the credential store.
type User struct {
	ID                  ulid.ULID
	Username            string
	Email               string
	DisplayName         string
	PasswordHash        string
	Role                Role
	Tier                Tier
	PasswordUpdatedAt   time.Time
	FailedLoginAttempts int
	IsLocked            bool
	LockedUntil         *time.Time
	ResetTokenHash      *string
	ResetTokenExpiry    *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.ResetTokenHash != nil {
		h := *u.ResetTokenHash
		c.ResetTokenHash = &h
	}
	if u.ResetTokenExpiry != nil {
		t := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &t
	}
	return &c
}

// Registration carries the identity fields of a new account.
type Registration struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
}

// NewUser creates a validated User with the given role and password hash.
// New users start in the PENDING tier with a fresh password timestamp.
func NewUser(reg Registration, role Role, passwordHash string, now time.Time) (*User, error) {
	if err := ValidateUsername(reg.Username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(reg.Email); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_ROLE").With("role", int(role)).Wrap(ErrInvalidRoleName)
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now = now.UTC()
	return &User{
		ID:                ulid.Make(),
		Username:          reg.Username,
		Email:             strings.ToLower(strings.TrimSpace(reg.Email)),
		DisplayName:       strings.TrimSpace(reg.DisplayName),
		PasswordHash:      passwordHash,
		Role:              role,
		Tier:              TierPending,
		PasswordUpdatedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ValidateUsername validates a username against the naming rules.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("ACCOUNT_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, dots, dashes and underscores")
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code("ACCOUNT_INVALID_EMAIL").With("email", email).Errorf("email address is malformed")
	}
	return nil
}

// LoginLog is an append-only record of a login attempt.
type LoginLog struct {
	ID         ulid.ULID
	Identifier string
	UserID     *ulid.ULID
	Timestamp  time.Time
	Success    bool
	Origin     *string
}

// newLoginLog builds a LoginLog entry. Empty origin is stored as nil.
func newLoginLog(identifier string, user *User, success bool, origin string, now time.Time) *LoginLog {
	entry := &LoginLog{
		ID:         ulid.Make(),
		Identifier: identifier,
		Timestamp:  now.UTC(),
		Success:    success,
	}
	if user != nil {
		id := user.ID
		entry.UserID = &id
	}
	if origin != "" {
		entry.Origin = &origin
	}
	return entry
}
