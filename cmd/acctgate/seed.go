// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/notify"
)

// Default timeout for store commands.
const defaultStoreTimeout = 30 * time.Second

// seedConfig holds configuration for the seed-admins command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// seedFile is the YAML document read by seed-admins.
type seedFile struct {
	Admins []seedAdmin `yaml:"admins"`
}

// seedAdmin is one admin account. PasswordEnv names an environment variable
// holding the password and takes precedence over Password.
type seedAdmin struct {
	Username    string `yaml:"username"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
}

// NewSeedAdminsCmd creates the seed-admins subcommand.
func NewSeedAdminsCmd() *cobra.Command {
	return newSeedAdminsCmd(nil)
}

func newSeedAdminsCmd(deps *StoreDeps) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed-admins",
		Short: "Create admin accounts from a YAML file",
		Long: `Creates the admin accounts listed in a YAML file. Accounts whose username
or email already exists are skipped, so the command can be run repeatedly.

  admins:
    - username: ops
      email: ops@example.com
      display_name: Operations
      password_env: ACCTGATE_OPS_PASSWORD`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedAdmins(cmd, cfg, deps)
		},
	}

	cmd.Flags().StringVarP(&cfg.file, "file", "f", "admins.yaml", "admin seed file")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultStoreTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

// parseSeedFile decodes and checks an admin seed document.
func parseSeedFile(data []byte) ([]account.Registration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc seedFile
	if err := dec.Decode(&doc); err != nil {
		return nil, oops.Code("SEED_FILE_INVALID").Wrap(err)
	}
	if len(doc.Admins) == 0 {
		return nil, oops.Code("SEED_FILE_INVALID").Errorf("seed file lists no admins")
	}

	regs := make([]account.Registration, 0, len(doc.Admins))
	for i, a := range doc.Admins {
		password := a.Password
		if a.PasswordEnv != "" {
			password = os.Getenv(a.PasswordEnv)
		}
		if password == "" {
			return nil, oops.Code("SEED_FILE_INVALID").
				With("index", i).
				With("username", a.Username).
				Errorf("admin %q has no password", a.Username)
		}
		regs = append(regs, account.Registration{
			Username:    a.Username,
			Email:       a.Email,
			DisplayName: a.DisplayName,
			Password:    password,
		})
	}
	return regs, nil
}

func runSeedAdmins(cmd *cobra.Command, cfg *seedConfig, deps *StoreDeps) error {
	data, err := os.ReadFile(cfg.file)
	if err != nil {
		return oops.Code("SEED_FILE_INVALID").With("path", cfg.file).Wrap(err)
	}
	regs, err := parseSeedFile(data)
	if err != nil {
		return oops.With("path", cfg.file).Wrap(err)
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	return withGateway(ctx, cmd, deps, func(gw *account.Gateway) error {
		created, skipped := 0, 0
		for _, reg := range regs {
			user, err := gw.CreateAdmin(ctx, reg)
			if errors.Is(err, account.ErrUniquenessConflict) {
				cmd.Printf("Admin %q already exists, skipping\n", reg.Username)
				skipped++
				continue
			}
			if err != nil {
				return oops.Code("SEED_FAILED").With("username", reg.Username).Wrap(err)
			}
			cmd.Printf("Created admin %q (%s)\n", user.Username, user.ID)
			created++
		}
		slog.Info("admin seeding complete", "created", created, "skipped", skipped)
		return nil
	})
}

// withGateway loads the config, opens the store and runs fn with a gateway
// over it. Reset codes are never emailed from the CLI.
func withGateway(ctx context.Context, cmd *cobra.Command, deps *StoreDeps, fn func(*account.Gateway) error) error {
	if deps == nil {
		deps = &StoreDeps{}
	}
	deps.applyDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}

	handle, err := deps.StoreOpener(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open credential store").Wrap(err)
	}
	defer handle.Close()

	argon := cfg.Security.Argon2
	hasher := account.NewArgon2idHasherWithParams(account.Argon2Params{
		Time:    argon.Time,
		Memory:  argon.Memory,
		Threads: argon.Threads,
		SaltLen: account.DefaultArgon2Params.SaltLen,
		KeyLen:  account.DefaultArgon2Params.KeyLen,
	})
	gw, err := account.NewGateway(handle, hasher, notify.NewLogNotifier(logger),
		account.WithLogger(logger),
		account.WithConflictRetry(cfg.Security.ConflictRetries, cfg.Security.ConflictBackoff),
	)
	if err != nil {
		return oops.Code("GATEWAY_INIT_FAILED").Wrap(err)
	}
	return fn(gw)
}
