// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"time"

	"github.com/holomush/acctgate/internal/account"
)

type registrationRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (r registrationRequest) registration() account.Registration {
	return account.Registration{
		Username:    r.Username,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Password:    r.Password,
	}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type newPasswordRequest struct {
	Password string `json:"password"`
}

type tierRequest struct {
	Tier string `json:"tier"`
}

// userResponse is the public projection of a user. Secrets never leave
// the account package.
type userResponse struct {
	ID                string       `json:"id"`
	Username          string       `json:"username"`
	Email             string       `json:"email"`
	DisplayName       string       `json:"display_name,omitempty"`
	Role              account.Role `json:"role"`
	Tier              account.Tier `json:"tier"`
	IsLocked          bool         `json:"is_locked"`
	LockedUntil       *time.Time   `json:"locked_until,omitempty"`
	PasswordUpdatedAt time.Time    `json:"password_updated_at"`
	CreatedAt         time.Time    `json:"created_at"`
}

func newUserResponse(u *account.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:                u.ID.String(),
		Username:          u.Username,
		Email:             u.Email,
		DisplayName:       u.DisplayName,
		Role:              u.Role,
		Tier:              u.Tier,
		IsLocked:          u.IsLocked,
		LockedUntil:       u.LockedUntil,
		PasswordUpdatedAt: u.PasswordUpdatedAt,
		CreatedAt:         u.CreatedAt,
	}
}

type loginResponse struct {
	Outcome          string        `json:"outcome"`
	User             *userResponse `json:"user,omitempty"`
	RemainingMinutes int           `json:"remaining_minutes,omitempty"`
	Message          string        `json:"message,omitempty"`
}

type errorResponse struct {
	Code       string              `json:"code"`
	Error      string              `json:"error"`
	Violations []account.Violation `json:"violations,omitempty"`
}
