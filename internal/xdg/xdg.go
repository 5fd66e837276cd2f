// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg provides XDG Base Directory paths for acctgate.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "acctgate"

// ConfigDir returns the XDG config directory for acctgate.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for acctgate.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() (string, error) {
	return resolve("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ConfigFile returns the path of the config file that is read when no
// --config flag is given. The file may not exist.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

func resolve(envVar, homeRel string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", oops.Code("XDG_NO_HOME").
				With("variable", envVar).
				Errorf("neither %s nor HOME is set", envVar)
		}
		base = filepath.Join(home, homeRel)
	}
	return filepath.Join(base, appName), nil
}
