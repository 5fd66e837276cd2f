// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/acctgate/internal/account"
)

// NewUnlockCmd creates the unlock subcommand.
func NewUnlockCmd() *cobra.Command {
	return newUnlockCmd(nil)
}

func newUnlockCmd(deps *StoreDeps) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "unlock USER_ID",
		Short: "Unlock a locked account",
		Long: `Clears the lock and failed-attempt counter of an account without waiting
for the lockout to expire.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ulid.ParseStrict(args[0])
			if err != nil {
				return oops.Code("INVALID_USER_ID").With("user_id", args[0]).Wrap(err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return withGateway(ctx, cmd, deps, func(gw *account.Gateway) error {
				user, err := gw.UnlockUser(ctx, id)
				if err != nil {
					return err //nolint:wrapcheck // already coded
				}
				cmd.Printf("Unlocked %q (%s)\n", user.Username, user.ID)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultStoreTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}
