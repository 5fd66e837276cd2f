// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

// InvalidCredentialsMessage is the single message shown for every failed
// credential check, whether or not the account exists.
const InvalidCredentialsMessage = "Invalid username or password"

// Login outcome labels.
const (
	OutcomeAuthenticated      = "authenticated"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeAccountLocked      = "account_locked"
	OutcomePasswordExpired    = "password_expired"
)

// LoginResult is the outcome of a login decision. It is one of
// Authenticated, InvalidCredentials, AccountLocked or PasswordExpired.
type LoginResult interface {
	// Outcome returns a stable label for the variant.
	Outcome() string

	loginResult()
}

// Authenticated means the credentials were accepted.
type Authenticated struct {
	User *User
}

// InvalidCredentials means the identifier is unknown or the password is wrong.
type InvalidCredentials struct{}

// AccountLocked means the account is locked for RemainingMinutes more minutes.
type AccountLocked struct {
	RemainingMinutes int
}

// PasswordExpired means the password matched but is past its maximum age.
// The user is not authenticated; User lets the caller start a reset flow.
type PasswordExpired struct {
	User *User
}

func (Authenticated) Outcome() string      { return OutcomeAuthenticated }
func (InvalidCredentials) Outcome() string { return OutcomeInvalidCredentials }
func (AccountLocked) Outcome() string      { return OutcomeAccountLocked }
func (PasswordExpired) Outcome() string    { return OutcomePasswordExpired }

func (Authenticated) loginResult()      {}
func (InvalidCredentials) loginResult() {}
func (AccountLocked) loginResult()      {}
func (PasswordExpired) loginResult()    {}
