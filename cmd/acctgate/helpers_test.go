// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// testEnv is a throwaway SQLite database plus a config file that keeps
// password hashing cheap.
type testEnv struct {
	dbURL      string
	configPath string
	dir        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ACCTGATE_DATABASE_URL", "")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "acctgate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`log:
  level: error
security:
  argon2:
    time: 1
    memory: 1024
    threads: 1
`), 0o600))

	return &testEnv{
		dbURL:      "sqlite://" + filepath.Join(dir, "accounts.db"),
		configPath: configPath,
		dir:        dir,
	}
}

// run executes the root command with the env's config and database.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{}, args...)
	full = append(full, "--config", e.configPath, "--env-file", filepath.Join(e.dir, "missing.env"), "--database-url", e.dbURL)
	return execute(t, NewRootCmd(), full...)
}

// execute runs cmd with args and returns its combined output.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
