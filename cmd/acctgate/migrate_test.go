// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/acctgate/internal/store"
	"github.com/holomush/acctgate/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "non-numeric returns error", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "float parses as integer", input: "1.5", wantVersion: 1},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "negative parses", input: "-1", wantVersion: -1},
		{name: "empty string returns error", input: "", wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only returns error", input: "   ", wantErrCode: "INVALID_VERSION"},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErrCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestMigrateCommand_Properties(t *testing.T) {
	cmd := NewMigrateCmd()

	assert.Equal(t, "migrate", cmd.Use)
	assert.Contains(t, cmd.Short, "migration")

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "status", "force"}, names)
}

func TestMigrateCommand_SQLiteLifecycle(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Dialect: sqlite")
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Applied: none")
	assert.Contains(t, out, "000001_accounts")

	out, err = env.run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations completed successfully")

	out, err = env.run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1")
	assert.Contains(t, out, "Pending: none")

	out, err = env.run(t, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolling back one migration")

	out, err = env.run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")
}

func TestMigrateCommand_Force(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "migrate", "up")
	require.NoError(t, err)

	out, err := env.run(t, "migrate", "force", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version forced to 1")

	_, err = env.run(t, "migrate", "force", "abc")
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrateCommand_UnsupportedURL(t *testing.T) {
	env := newTestEnv(t)
	env.dbURL = "mysql://localhost/accounts"

	_, err := env.run(t, "migrate")
	errutil.AssertErrorCode(t, err, "STORE_INVALID_URL")
}

// fakeMigrator records calls made by the migrate commands.
type fakeMigrator struct {
	upErr    error
	closed   bool
	steps    []int
	downAll  bool
	upCalled bool
}

func (m *fakeMigrator) Up() error { m.upCalled = true; return m.upErr }
func (m *fakeMigrator) Close() error { m.closed = true; return nil }
func (m *fakeMigrator) Steps(n int) error { m.steps = append(m.steps, n); return nil }
func (m *fakeMigrator) Down() error { m.downAll = true; return nil }
func (m *fakeMigrator) Force(int) error { return nil }
func (m *fakeMigrator) Version() (uint, bool, error) { return 1, true, nil }
func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return nil, nil }
func (m *fakeMigrator) AppliedMigrations() ([]uint, error) { return []uint{1}, nil }
func (m *fakeMigrator) Dialect() store.Dialect { return store.DialectPostgres }

func useFakeMigrator(t *testing.T, m *fakeMigrator) {
	t.Helper()
	orig := migratorFactory
	migratorFactory = func(string) (Migrator, error) { return m, nil }
	t.Cleanup(func() { migratorFactory = orig })
}

func TestMigrateCommand_DownAll(t *testing.T) {
	env := newTestEnv(t)
	m := &fakeMigrator{}
	useFakeMigrator(t, m)

	_, err := env.run(t, "migrate", "down", "--all")
	require.NoError(t, err)
	assert.True(t, m.downAll)
	assert.Empty(t, m.steps)
	assert.True(t, m.closed)
}

func TestMigrateCommand_StatusShowsDirty(t *testing.T) {
	env := newTestEnv(t)
	useFakeMigrator(t, &fakeMigrator{})

	out, err := env.run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Dialect: postgres")
	assert.Contains(t, out, "Current version: 1 (dirty)")
	assert.Contains(t, out, "000001_accounts")
}

func TestMigrateCommand_UpFailureClosesMigrator(t *testing.T) {
	env := newTestEnv(t)
	m := &fakeMigrator{upErr: errors.New("boom")}
	useFakeMigrator(t, m)

	_, err := env.run(t, "migrate")
	require.Error(t, err)
	assert.True(t, m.upCalled)
	assert.True(t, m.closed)
}
