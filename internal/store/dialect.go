// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"net/url"
	"strings"

	"github.com/samber/oops"
)

// Dialect identifies a supported SQL backend.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectFromURL picks the dialect from the URL scheme.
func DialectFromURL(databaseURL string) (Dialect, error) {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", oops.Code("STORE_INVALID_URL").Errorf("database URL has no scheme")
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql", "pgx5":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", oops.Code("STORE_INVALID_URL").
			With("scheme", scheme).
			Errorf("unsupported database scheme %q", scheme)
	}
}

func (d Dialect) migrationsDir() string {
	return "migrations/" + string(d)
}

// migrateURL rewrites databaseURL to the scheme the golang-migrate driver
// for d registers.
func (d Dialect) migrateURL(databaseURL string) string {
	_, rest, _ := strings.Cut(databaseURL, "://")
	switch d {
	case DialectPostgres:
		return "pgx5://" + rest
	case DialectSQLite:
		return "sqlite://" + rest
	default:
		return databaseURL
	}
}

// SQLitePath returns the database file path of a sqlite:// URL.
func SQLitePath(databaseURL string) string {
	_, rest, _ := strings.Cut(databaseURL, "://")
	path, _, _ := strings.Cut(rest, "?")
	if unescaped, err := url.PathUnescape(path); err == nil {
		return unescaped
	}
	return path
}
