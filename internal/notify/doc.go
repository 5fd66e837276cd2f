// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers password reset codes.
//
// SMTPNotifier sends the code by email. LogNotifier writes it to the log and
// is meant for development setups without a mail relay.
package notify
