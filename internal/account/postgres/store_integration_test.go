// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/account/postgres"
)

type capturingNotifier struct {
	mu     sync.Mutex
	tokens []string
}

func (n *capturingNotifier) Send(_ context.Context, _, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = append(n.tokens, token)
	return nil
}

func (n *capturingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	Expect(n.tokens).NotTo(BeEmpty())
	return n.tokens[len(n.tokens)-1]
}

const password = "Str0ng!Pass"

var _ = Describe("Store", func() {
	var (
		ctx      context.Context
		gw       *account.Gateway
		notifier *capturingNotifier
	)

	BeforeEach(func() {
		ctx = context.Background()
		notifier = &capturingNotifier{}
		hasher := account.NewArgon2idHasherWithParams(account.Argon2Params{
			Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32,
		})
		var err error
		gw, err = account.NewGateway(postgres.New(testPool), hasher, notifier)
		Expect(err).NotTo(HaveOccurred())
	})

	register := func(username string) *account.User {
		u, err := gw.RegisterCustomer(ctx, account.Registration{
			Username: username,
			Email:    username + "@example.com",
			Password: password,
		})
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	Describe("registration", func() {
		It("round-trips every field", func() {
			alice := register("alice")

			got, err := gw.GetUser(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Username).To(Equal("alice"))
			Expect(got.Role).To(Equal(account.RoleUser))
			Expect(got.Tier).To(Equal(account.TierPending))
			Expect(got.PasswordUpdatedAt).To(BeTemporally("~", alice.PasswordUpdatedAt, time.Millisecond))
		})

		It("enforces case-insensitive uniqueness", func() {
			register("alice")
			_, err := gw.CreateAdmin(ctx, account.Registration{
				Username: "ALICE",
				Email:    "different@example.com",
				Password: password,
			})
			Expect(err).To(MatchError(account.ErrUniquenessConflict))
		})
	})

	Describe("login", func() {
		It("locks after repeated failures and records every attempt", func() {
			alice := register("alice")
			for range account.LockoutThreshold - 1 {
				r, err := gw.Login(ctx, "alice", "Wrong!Pass1", "127.0.0.1")
				Expect(err).NotTo(HaveOccurred())
				Expect(r).To(Equal(account.InvalidCredentials{}))
			}
			r, err := gw.Login(ctx, "alice@example.com", "Wrong!Pass1", "127.0.0.1")
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(account.AccountLocked{RemainingMinutes: 15}))

			got, err := gw.GetUser(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsLocked).To(BeTrue())
			Expect(got.LockedUntil).NotTo(BeNil())

			var count int
			Expect(testPool.QueryRow(ctx,
				`SELECT COUNT(*) FROM login_logs WHERE user_id = $1 AND NOT success`,
				alice.ID.String()).Scan(&count)).To(Succeed())
			Expect(count).To(Equal(account.LockoutThreshold))
		})

		It("does not lose concurrent failures", func() {
			alice := register("alice")

			const callers = 4
			var wg sync.WaitGroup
			for range callers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := gw.Login(ctx, "alice", "Wrong!Pass1", "")
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			got, err := gw.GetUser(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.FailedLoginAttempts).To(Equal(callers))
		})
	})

	Describe("password reset", func() {
		It("issues, verifies and consumes a code", func() {
			alice := register("alice")
			Expect(gw.RequestPasswordReset(ctx, "alice@example.com")).To(Succeed())
			token := notifier.last()

			ok, err := gw.VerifyResetToken(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = gw.ResetPassword(ctx, token, "N3w!Secret")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			got, err := gw.GetUser(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ResetTokenHash).To(BeNil())

			ok, err = gw.ResetPassword(ctx, token, "N3w!Secret")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("tier assignment", func() {
		It("persists the parsed tier", func() {
			alice := register("alice")
			u, err := gw.AssignTier(ctx, alice.ID, "premium")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Tier).To(Equal(account.TierPremium))

			var tier string
			Expect(testPool.QueryRow(ctx, `SELECT tier FROM users WHERE id = $1`, alice.ID.String()).
				Scan(&tier)).To(Succeed())
			Expect(tier).To(Equal("PREMIUM"))
		})
	})
})
