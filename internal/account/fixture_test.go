// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/acctgate/internal/account"
	"github.com/holomush/acctgate/internal/account/memstore"
)

const strongPassword = "Str0ng!Pass"

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier records every code it is asked to deliver.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentCode
	fail error
}

type sentCode struct {
	email string
	token string
}

func (n *recordingNotifier) Send(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentCode{email: email, token: token})
	return n.fail
}

func (n *recordingNotifier) last(t *testing.T) sentCode {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no code was sent")
	return n.sent[len(n.sent)-1]
}

// fastHasher uses minimal argon2 costs so tests stay quick.
func fastHasher() *account.Argon2idHasher {
	return account.NewArgon2idHasherWithParams(account.Argon2Params{
		Time:    1,
		Memory:  64,
		Threads: 1,
		SaltLen: 16,
		KeyLen:  32,
	})
}

type fixture struct {
	gw       *account.Gateway
	store    *memstore.Store
	clock    *testClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...account.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		clock:    newTestClock(),
		notifier: &recordingNotifier{},
	}
	opts = append([]account.Option{
		account.WithClock(f.clock.Now),
		account.WithConflictRetry(3, time.Millisecond),
	}, opts...)
	gw, err := account.NewGateway(f.store, fastHasher(), f.notifier, opts...)
	require.NoError(t, err)
	f.gw = gw
	return f
}

func (f *fixture) register(t *testing.T, username string) *account.User {
	t.Helper()
	u, err := f.gw.RegisterCustomer(context.Background(), account.Registration{
		Username: username,
		Email:    username + "@example.com",
		Password: strongPassword,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) failLogins(t *testing.T, identifier string, n int) account.LoginResult {
	t.Helper()
	var last account.LoginResult
	for range n {
		r, err := f.gw.Login(context.Background(), identifier, "Wrong!Pass1", "10.0.0.1")
		require.NoError(t, err)
		last = r
	}
	return last
}

func (f *fixture) user(t *testing.T, u *account.User) *account.User {
	t.Helper()
	got, err := f.gw.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	return got
}
