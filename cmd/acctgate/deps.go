// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/config"
	"github.com/holomush/acctgate/internal/httpapi"
	"github.com/holomush/acctgate/internal/notify"
	"github.com/holomush/acctgate/internal/observability"
	"github.com/holomush/acctgate/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the credential store.
	// Default: store.Open
	StoreOpener func(ctx context.Context, databaseURL string) (store.Handle, error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// NotifierFactory builds the reset code notifier.
	// Default: newNotifier
	NotifierFactory func(cfg config.SMTPConfig, logger *slog.Logger) (account.Notifier, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, register ...func(prometheus.Registerer)) ObservabilityServer

	// APIServerFactory creates the account API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler) Server
}

// StoreDeps contains injectable dependencies for commands that only need
// the credential store.
type StoreDeps struct {
	// StoreOpener opens the credential store.
	// Default: store.Open
	StoreOpener func(ctx context.Context, databaseURL string) (store.Handle, error)
}

// AutoMigrator wraps the migrator methods used on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Server wraps the methods used from httpapi.Server and observability.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
	Metrics() *observability.Metrics
}

func (d *ServeDeps) applyDefaults() {
	if d.StoreOpener == nil {
		d.StoreOpener = store.Open
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = newNotifier
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, register ...func(prometheus.Registerer)) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, register...)
		}
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(addr string, handler http.Handler) Server {
			return httpapi.NewServer(addr, handler)
		}
	}
}

func (d *StoreDeps) applyDefaults() {
	if d.StoreOpener == nil {
		d.StoreOpener = store.Open
	}
}

// newNotifier returns an SMTP notifier when SMTP is enabled and a notifier
// that only logs the code otherwise.
func newNotifier(cfg config.SMTPConfig, logger *slog.Logger) (account.Notifier, error) {
	if !cfg.Enabled {
		logger.Warn("smtp disabled, reset codes are written to the log")
		return notify.NewLogNotifier(logger), nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		Password:    cfg.Password,
		From:        cfg.From,
		Subject:     cfg.Subject,
		ImplicitTLS: cfg.ImplicitTLS,
		Timeout:     cfg.Timeout,
		Retries:     notify.DefaultRetries,
	}, logger)
	if err != nil {
		return nil, err //nolint:wrapcheck // already coded
	}
	return n, nil
}
