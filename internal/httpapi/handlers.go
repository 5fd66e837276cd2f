// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/acctgate/internal/account"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// decode reads a JSON body into dst. It writes a 400 and returns false on
// malformed input.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request payload")
		return false
	}
	return true
}

func userID(w http.ResponseWriter, r *http.Request) (ulid.ULID, bool) {
	id, err := ulid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "user id must be a ULID")
		return ulid.ULID{}, false
	}
	return id, true
}

// origin is the client host, without port.
func origin(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *API) registerCustomer(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := a.accounts.RegisterCustomer(r.Context(), req.registration())
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

func (a *API) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := a.accounts.CreateAdmin(r.Context(), req.registration())
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.accounts.Login(r.Context(), req.Identifier, req.Password, origin(r))
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}

	resp := loginResponse{Outcome: result.Outcome()}
	status := http.StatusOK
	switch res := result.(type) {
	case account.Authenticated:
		resp.User = newUserResponse(res.User)
	case account.InvalidCredentials:
		status = http.StatusUnauthorized
		resp.Message = account.InvalidCredentialsMessage
	case account.AccountLocked:
		status = http.StatusLocked
		resp.RemainingMinutes = res.RemainingMinutes
		resp.Message = "Account is locked"
	case account.PasswordExpired:
		status = http.StatusForbidden
		resp.User = newUserResponse(res.User)
		resp.Message = "Password has expired and must be reset"
	}
	writeJSON(w, status, resp)
}

func (a *API) requestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (a *API) verifyReset(w http.ResponseWriter, r *http.Request) {
	valid, err := a.accounts.VerifyResetToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req newPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	ok, err := a.accounts.ResetPassword(r.Context(), mux.Vars(r)["token"], req.Password)
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_or_expired_token", account.ErrInvalidOrExpired.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (a *API) assignTier(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req tierRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := a.accounts.AssignTier(r.Context(), id, req.Tier)
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := a.accounts.GetUser(r.Context(), id)
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (a *API) unlockUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := a.accounts.UnlockUser(r.Context(), id)
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}
