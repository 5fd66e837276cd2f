// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store opens credential stores by URL and manages their schema.
package store

import (
	"context"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/account/postgres"
	"github.com/holomush/acctgate/internal/account/sqlite"
	"github.com/holomush/acctgate/internal/xdg"
)

// Handle is an open credential store.
type Handle interface {
	account.Store

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases the database connections.
	Close()
}

// Open connects to the credential store at databaseURL. The dialect is
// picked from the URL scheme. Open does not migrate the schema.
func Open(ctx context.Context, databaseURL string) (Handle, error) {
	dialect, err := DialectFromURL(databaseURL)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		pool, err := postgres.Connect(ctx, databaseURL)
		if err != nil {
			return nil, oops.With("dialect", string(dialect)).Wrap(err)
		}
		return &postgresHandle{Store: postgres.New(pool), pool: pool}, nil
	case DialectSQLite:
		path := SQLitePath(databaseURL)
		if err := ensureSQLiteDir(path); err != nil {
			return nil, err
		}
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, oops.With("dialect", string(dialect)).Wrap(err)
		}
		return &sqliteHandle{Store: s}, nil
	default:
		return nil, oops.Code("STORE_INVALID_URL").With("dialect", string(dialect)).Errorf("unsupported dialect")
	}
}

// ensureSQLiteDir creates the directory holding a SQLite database file.
func ensureSQLiteDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || path == ":memory:" {
		return nil
	}
	return xdg.EnsureDir(dir) //nolint:wrapcheck // already coded
}

type postgresHandle struct {
	*postgres.Store
	pool *pgxpool.Pool
}

func (h *postgresHandle) Close() {
	h.pool.Close()
}

type sqliteHandle struct {
	*sqlite.Store
}

func (h *sqliteHandle) Close() {
	_ = h.Store.Close() //nolint:errcheck // nothing useful to do on shutdown
}
