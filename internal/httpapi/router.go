// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi maps JSON HTTP requests onto account gateway operations.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/observability"
)

// Accounts is the set of gateway operations the API serves.
type Accounts interface {
	RegisterCustomer(ctx context.Context, reg account.Registration) (*account.User, error)
	CreateAdmin(ctx context.Context, reg account.Registration) (*account.User, error)
	Login(ctx context.Context, identifier, password, origin string) (account.LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, token string) (bool, error)
	ResetPassword(ctx context.Context, token, newPassword string) (bool, error)
	AssignTier(ctx context.Context, id ulid.ULID, tierName string) (*account.User, error)
	UnlockUser(ctx context.Context, id ulid.ULID) (*account.User, error)
	GetUser(ctx context.Context, id ulid.ULID) (*account.User, error)
}

var _ Accounts = (*account.Gateway)(nil)

// Config configures the router.
type Config struct {
	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string
	// AdminToken, when set, is required as a bearer token on admin routes.
	AdminToken string
	// TrustProxyHeaders takes the client address from X-Forwarded-For.
	TrustProxyHeaders bool
	Logger            *slog.Logger
	Metrics           *observability.Metrics
}

// API serves the account endpoints.
type API struct {
	accounts Accounts
	cfg      Config
	logger   *slog.Logger
}

// NewHandler builds the HTTP handler for accounts.
func NewHandler(accounts Accounts, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := &API{accounts: accounts, cfg: cfg, logger: logger}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	r.Use(api.instrument)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/customers", api.registerCustomer).Methods(http.MethodPost).Name("register_customer")
	v1.HandleFunc("/login", api.login).Methods(http.MethodPost).Name("login")
	v1.HandleFunc("/password-resets", api.requestReset).Methods(http.MethodPost).Name("request_reset")
	v1.HandleFunc("/password-resets/{token}", api.verifyReset).Methods(http.MethodGet).Name("verify_reset")
	v1.HandleFunc("/password-resets/{token}", api.resetPassword).Methods(http.MethodPost).Name("reset_password")

	admin := v1.NewRoute().Subrouter()
	admin.Use(api.requireAdmin)
	admin.HandleFunc("/admins", api.createAdmin).Methods(http.MethodPost).Name("create_admin")
	admin.HandleFunc("/users/{id}", api.getUser).Methods(http.MethodGet).Name("get_user")
	admin.HandleFunc("/users/{id}/tier", api.assignTier).Methods(http.MethodPut).Name("assign_tier")
	admin.HandleFunc("/users/{id}/unlock", api.unlockUser).Methods(http.MethodPost).Name("unlock_user")

	var h http.Handler = r
	if len(cfg.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(cfg.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(h)
	}
	h = handlers.CustomLoggingHandler(io.Discard, h, api.logRequest)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	if cfg.TrustProxyHeaders {
		h = handlers.ProxyHeaders(h)
	}
	return h
}
