// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Redacted replaces secret context values in logs.
const Redacted = "[REDACTED]"

// secretKeys never reach the log with their value.
var secretKeys = map[string]bool{
	"password":         true,
	"password_hash":    true,
	"token":            true,
	"reset_token":      true,
	"reset_token_hash": true,
	"admin_token":      true,
}

// LogError logs err at error level. For oops errors the code and context are
// logged as attributes. Secret context values are replaced with Redacted and
// email addresses are masked to their first character and domain.
func LogError(logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Error(msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", RedactContext(ctx))
	}
	logger.Error(msg, attrs...)
}

// RedactContext returns a copy of ctx that is safe to log.
func RedactContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch {
		case secretKeys[k]:
			out[k] = Redacted
		case k == "email":
			if s, ok := v.(string); ok {
				out[k] = MaskEmail(s)
			} else {
				out[k] = Redacted
			}
		default:
			out[k] = v
		}
	}
	return out
}

// MaskEmail keeps the first character of the local part and the domain:
// alice@example.com becomes a***@example.com.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return Redacted
	}
	_, size := utf8.DecodeRuneInString(email)
	return email[:size] + "***" + email[at:]
}
