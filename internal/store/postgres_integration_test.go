// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/store"
)

// setupPostgres starts a PostgreSQL container, migrates it and opens it.
func setupPostgres() (store.Handle, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("acctgate_test"),
		postgres.WithUsername("acctgate"),
		postgres.WithPassword("acctgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	_ = migrator.Close()

	h, err := store.Open(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		h.Close()
		_ = container.Terminate(ctx)
	}
	return h, cleanup, nil
}

var _ = Describe("Open", func() {
	var (
		handle  store.Handle
		cleanup func()
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		handle, cleanup, err = setupPostgres()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if cleanup != nil {
			cleanup()
		}
	})

	It("pings the database", func() {
		Expect(handle.Ping(ctx)).To(Succeed())
	})

	It("runs units of work against the migrated schema", func() {
		u, err := account.NewUser(account.Registration{
			Username: "alice",
			Email:    "alice@example.com",
		}, account.RoleUser, "$argon2id$hash", time.Now())
		Expect(err).NotTo(HaveOccurred())

		err = handle.WithTx(ctx, account.TxOptions{}, func(ctx context.Context, tx account.Tx) error {
			return tx.CreateUser(ctx, u)
		})
		Expect(err).NotTo(HaveOccurred())

		err = handle.WithTx(ctx, account.TxOptions{ReadOnly: true}, func(ctx context.Context, tx account.Tx) error {
			exists, err := tx.UserExists(ctx, "ALICE", "someone@example.com")
			Expect(exists).To(BeTrue())
			return err
		})
		Expect(err).NotTo(HaveOccurred())
	})
})
