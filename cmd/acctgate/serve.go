// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/config"
	"github.com/holomush/acctgate/internal/httpapi"
	"github.com/holomush/acctgate/internal/observability"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the account API server. It opens the credential store, optionally
applies pending migrations, and serves the account API together with the
metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the API server until ctx is cancelled, a signal
// arrives or a server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // already coded
	}

	logger, err := setupLogging(cfg.Log)
	if err != nil {
		return oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}

	logger.Info("starting acctgate",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"log_format", cfg.Log.Format,
	)

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	handle, err := deps.StoreOpener(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open credential store").Wrap(err)
	}
	defer handle.Close()

	logger.Info("connected to credential store")

	notifier, err := deps.NotifierFactory(cfg.SMTP, logger)
	if err != nil {
		return oops.Code("NOTIFIER_INIT_FAILED").Wrap(err)
	}

	argon := cfg.Security.Argon2
	hasher := account.NewArgon2idHasherWithParams(account.Argon2Params{
		Time:    argon.Time,
		Memory:  argon.Memory,
		Threads: argon.Threads,
		SaltLen: account.DefaultArgon2Params.SaltLen,
		KeyLen:  account.DefaultArgon2Params.KeyLen,
	})

	gateway, err := account.NewGateway(handle, hasher, notifier,
		account.WithLogger(logger),
		account.WithConflictRetry(cfg.Security.ConflictRetries, cfg.Security.ConflictBackoff),
		account.WithConcealUnknownEmail(cfg.Security.ConcealUnknownEmail),
	)
	if err != nil {
		return oops.Code("GATEWAY_INIT_FAILED").Wrap(err)
	}

	if cfg.HTTP.AdminToken == "" {
		logger.Warn("admin token not set, admin routes are unauthenticated")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, handle.Ping, account.RegisterMetrics)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	handler := httpapi.NewHandler(gateway, httpapi.Config{
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		AdminToken:        cfg.HTTP.AdminToken,
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		Logger:            logger,
		Metrics:           metrics,
	})
	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, handler)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServer(obsServer, "observability", 5*time.Second)
		return oops.Code("API_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("acctgate started")
	logger.Info("acctgate ready", "api_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopServer(apiServer, "api", cfg.HTTP.ShutdownTimeout)
	stopServer(obsServer, "observability", 5*time.Second)
	logger.Info("shutdown complete")
	return nil
}

// autoMigrate applies pending migrations before the store is opened.
func autoMigrate(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	slog.Info("running database migrations")
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}
	slog.Info("database migrations complete")
	return nil
}

// stopServer stops srv within timeout. A nil srv is ignored.
func stopServer(srv Server, name string, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
