// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/acctgate/internal/account"
)

// LogNotifier writes reset codes to a logger instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

var _ account.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send implements account.Notifier.
func (n *LogNotifier) Send(ctx context.Context, recipientEmail, token string) error {
	n.logger.WarnContext(ctx, "reset code not emailed, smtp disabled",
		"recipient", recipientEmail,
		"code", token,
	)
	return nil
}
