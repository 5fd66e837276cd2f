// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default unit-of-work retry policy for lost-update conflicts.
const (
	DefaultConflictRetries = 3
	DefaultConflictBackoff = 10 * time.Millisecond
)

// Clock returns the current time. Services read time only through it.
type Clock func() time.Time

type options struct {
	logger          *slog.Logger
	clock           Clock
	conflictRetries uint64
	conflictBackoff time.Duration
	generateToken   func() (token, hash string, err error)
	concealUnknown  bool
}

// Option configures a service.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithConflictRetry sets how many times a conflicting unit of work is re-run
// and the constant delay between runs.
func WithConflictRetry(retries uint64, backoff time.Duration) Option {
	return func(o *options) {
		o.conflictRetries = retries
		o.conflictBackoff = backoff
	}
}

// WithTokenGenerator overrides the reset code source.
func WithTokenGenerator(gen func() (token, hash string, err error)) Option {
	return func(o *options) { o.generateToken = gen }
}

// WithConcealUnknownEmail makes RequestPasswordReset report success for
// addresses that have no account.
func WithConcealUnknownEmail(conceal bool) Option {
	return func(o *options) { o.concealUnknown = conceal }
}

func buildOptions(opts []Option) (options, error) {
	o := options{
		logger:          slog.Default(),
		clock:           time.Now,
		conflictRetries: DefaultConflictRetries,
		conflictBackoff: DefaultConflictBackoff,
		generateToken:   GenerateResetToken,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		return o, oops.Code("ACCOUNT_INVALID_OPTION").Errorf("logger cannot be nil")
	}
	if o.clock == nil {
		return o, oops.Code("ACCOUNT_INVALID_OPTION").Errorf("clock cannot be nil")
	}
	if o.generateToken == nil {
		return o, oops.Code("ACCOUNT_INVALID_OPTION").Errorf("token generator cannot be nil")
	}
	return o, nil
}

// unitRunner executes units of work against a Store and re-runs them when
// the store reports a lost update.
type unitRunner struct {
	store   Store
	retries uint64
	backoff time.Duration
}

func newUnitRunner(store Store, o options) unitRunner {
	return unitRunner{store: store, retries: o.conflictRetries, backoff: o.conflictBackoff}
}

// run executes fn in one transaction. ErrConflict and timeouts surface as
// ErrTransient; other errors pass through unchanged.
func (r unitRunner) run(ctx context.Context, operation string, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	b := retry.WithMaxRetries(r.retries, retry.NewConstant(r.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.store.WithTx(ctx, opts, fn)
		if errors.Is(err, ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, context.DeadlineExceeded):
		return oops.Code("ACCOUNT_TRANSIENT").
			With("operation", operation).
			With("cause", err.Error()).
			Wrap(ErrTransient)
	default:
		return err
	}
}
