// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/holomush/acctgate/internal/config"
	"github.com/holomush/acctgate/internal/logging"
	"github.com/holomush/acctgate/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

const serviceName = "acctgate"

// NewRootCmd creates the root command for the acctgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acctgate",
		Short: "acctgate - account security gateway",
		Long: `acctgate registers customer and admin accounts, decides logins with
lockout and password expiry, and runs emailed password resets.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment (missing file is ignored)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedAdminsCmd())
	cmd.AddCommand(NewUnlockCmd())

	return cmd
}

// loadConfig reads the config file, environment and flags of cmd.
// Without --config the XDG config file is used when it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		path = defaultConfigFile()
	}
	//nolint:wrapcheck // config errors already carry codes
	return config.Load(config.LoadOptions{
		ConfigFile: path,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
}

func defaultConfigFile() string {
	path, err := xdg.ConfigFile()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err //nolint:wrapcheck // already coded
	}
	return logging.SetDefault(serviceName, version, cfg.Format, level), nil
}
