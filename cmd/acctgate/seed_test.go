// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/pkg/errutil"
)

const adminPassword = "Str0ng!Pass"

func TestParseSeedFile(t *testing.T) {
	t.Setenv("SEED_OPS_PASSWORD", adminPassword)

	tests := []struct {
		name        string
		doc         string
		want        []account.Registration
		wantErrCode string
	}{
		{
			name: "inline password",
			doc: `admins:
  - username: root
    email: root@example.com
    display_name: Root
    password: "` + adminPassword + `"
`,
			want: []account.Registration{
				{Username: "root", Email: "root@example.com", DisplayName: "Root", Password: adminPassword},
			},
		},
		{
			name: "password from environment wins",
			doc: `admins:
  - username: ops
    email: ops@example.com
    password: ignored
    password_env: SEED_OPS_PASSWORD
`,
			want: []account.Registration{
				{Username: "ops", Email: "ops@example.com", Password: adminPassword},
			},
		},
		{
			name: "unknown field",
			doc: `admins:
  - username: root
    emial: root@example.com
`,
			wantErrCode: "SEED_FILE_INVALID",
		},
		{
			name:        "no admins",
			doc:         "admins: []\n",
			wantErrCode: "SEED_FILE_INVALID",
		},
		{
			name: "missing password",
			doc: `admins:
  - username: root
    email: root@example.com
    password_env: SEED_UNSET_PASSWORD
`,
			wantErrCode: "SEED_FILE_INVALID",
		},
		{
			name:        "not yaml",
			doc:         "admins: [",
			wantErrCode: "SEED_FILE_INVALID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs, err := parseSeedFile([]byte(tt.doc))
			if tt.wantErrCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, regs)
		})
	}
}

var createdAdminRe = regexp.MustCompile(`Created admin "([^"]+)" \(([0-9A-Z]{26})\)`)

// seedOneAdmin migrates env's database and seeds one admin, returning its ID.
func seedOneAdmin(t *testing.T, env *testEnv, username string) ulid.ULID {
	t.Helper()
	_, err := env.run(t, "migrate")
	require.NoError(t, err)

	path := writeSeedFile(t, env, `admins:
  - username: `+username+`
    email: `+username+`@example.com
    password: "`+adminPassword+`"
`)
	out, err := env.run(t, "seed-admins", "-f", path)
	require.NoError(t, err)

	m := createdAdminRe.FindStringSubmatch(out)
	require.Len(t, m, 3, "unexpected output: %s", out)
	assert.Equal(t, username, m[1])
	return ulid.MustParse(m[2])
}

func writeSeedFile(t *testing.T, env *testEnv, doc string) string {
	t.Helper()
	path := filepath.Join(env.dir, "admins.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestSeedAdmins_CreatesAndSkipsExisting(t *testing.T) {
	env := newTestEnv(t)
	id := seedOneAdmin(t, env, "ops")

	out, err := env.run(t, "seed-admins", "-f", filepath.Join(env.dir, "admins.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, `Admin "ops" already exists, skipping`)

	gw := openGateway(t, env)
	user, err := gw.GetUser(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, account.RoleAdmin, user.Role)
	assert.Equal(t, account.TierPending, user.Tier)
}

func TestSeedAdmins_PolicyViolationFails(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "migrate")
	require.NoError(t, err)

	path := writeSeedFile(t, env, `admins:
  - username: weak
    email: weak@example.com
    password: weak
`)
	_, err = env.run(t, "seed-admins", "-f", path)
	require.Error(t, err)

	var policyErr *account.PolicyError
	assert.ErrorAs(t, err, &policyErr)
}

func TestSeedAdmins_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "seed-admins", "-f", filepath.Join(env.dir, "nope.yaml"))
	errutil.AssertErrorCode(t, err, "SEED_FILE_INVALID")
}
