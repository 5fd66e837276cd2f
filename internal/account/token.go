// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ResetTokenLength   = 6
	ResetTokenExpiry   = 15 * time.Minute
)

// GenerateResetToken creates a random reset code and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext goes to the
// user; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	var sb strings.Builder
	sb.Grow(ResetTokenLength)
	limit := big.NewInt(int64(len(ResetTokenAlphabet)))
	for range ResetTokenLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
		}
		sb.WriteByte(ResetTokenAlphabet[n.Int64()])
	}
	token = sb.String()
	return token, HashResetToken(token), nil
}

// HashResetToken computes the stored form of a reset token.
// Tokens are case-insensitive for the user, so they are normalised first.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(token))))
	return hex.EncodeToString(h[:])
}

// resetTokenUsable reports whether u has an unexpired reset token at now.
func resetTokenUsable(u *User, now time.Time) bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpiry != nil && !now.After(*u.ResetTokenExpiry)
}
