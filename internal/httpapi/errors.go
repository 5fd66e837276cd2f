// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/pkg/errutil"
)

// inputCodes are oops codes that describe malformed client input.
var inputCodes = map[string]bool{
	"ACCOUNT_INVALID_USERNAME": true,
	"ACCOUNT_INVALID_EMAIL":    true,
	"ACCOUNT_EMPTY_PASSWORD":   true,
}

// writeAccountError maps an account error onto a status code and body.
// Unexpected errors are logged and reported as 500 without detail.
func (a *API) writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	var policyErr *account.PolicyError
	switch {
	case errors.As(err, &policyErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:       "password_policy",
			Error:      policyErr.Error(),
			Violations: policyErr.Violations,
		})
	case errors.Is(err, account.ErrUniquenessConflict):
		writeError(w, http.StatusConflict, "conflict", account.ErrUniquenessConflict.Error())
	case errors.Is(err, account.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, account.ErrInvalidTierName):
		writeError(w, http.StatusBadRequest, "invalid_tier", account.ErrInvalidTierName.Error())
	case errors.Is(err, account.ErrInvalidOrExpired):
		writeError(w, http.StatusBadRequest, "invalid_or_expired_token", account.ErrInvalidOrExpired.Error())
	case errors.Is(err, account.ErrDelivery):
		errutil.LogError(a.logger, "reset code delivery failed", err)
		writeError(w, http.StatusBadGateway, "delivery_failed", account.ErrDelivery.Error())
	case errors.Is(err, account.ErrTransient):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "transient", account.ErrTransient.Error())
	case inputCodes[codeOf(err)]:
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		errutil.LogError(a.logger.With("path", redactPath(r.URL.Path)), "request failed", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func codeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() == nil {
		return ""
	}
	return fmt.Sprint(oopsErr.Code())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
