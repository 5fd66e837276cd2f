// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count and latency per named route.
func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil && cur.GetName() != "" {
			route = cur.GetName()
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		a.cfg.Metrics.ObserveRequest(route, rec.status, time.Since(start))
	})
}

// requireAdmin checks the admin bearer token when one is configured.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.AdminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	level := slog.LevelInfo
	if p.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	a.logger.LogAttrs(p.Request.Context(), level, "http request",
		slog.String("method", p.Request.Method),
		slog.String("path", redactPath(p.URL.Path)),
		slog.Int("status", p.StatusCode),
		slog.Int("size", p.Size),
		slog.Duration("duration", time.Since(p.TimeStamp)),
		slog.String("remote", p.Request.RemoteAddr),
	)
}

// recoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic serving request", "panic", fmt.Sprint(v...))
}

// redactPath hides reset codes carried in the URL.
func redactPath(path string) string {
	if rest, ok := strings.CutPrefix(path, "/v1/password-resets/"); ok && rest != "" {
		return "/v1/password-resets/{token}"
	}
	return path
}
