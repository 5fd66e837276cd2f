// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password the policy accepts.
const MinPasswordLength = 8

// PasswordSpecialChars is the punctuation set that satisfies the special
// character rule.
const PasswordSpecialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Rule identifies a single password policy rule.
type Rule string

// Password policy rules.
const (
	RuleMinLength Rule = "min_length"
	RuleLowercase Rule = "lowercase"
	RuleUppercase Rule = "uppercase"
	RuleDigit     Rule = "digit"
	RuleSpecial   Rule = "special"
)

// Violation describes one failed policy rule.
type Violation struct {
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

// ValidatePassword checks password against every policy rule and returns all
// violations found. An empty result means the password is compliant.
// Letter and digit rules count ASCII characters only.
func ValidatePassword(password string) []Violation {
	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case 'a' <= r && r <= 'z':
			hasLower = true
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case '0' <= r && r <= '9':
			hasDigit = true
		case strings.ContainsRune(PasswordSpecialChars, r):
			hasSpecial = true
		}
	}

	violations := []Violation{}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		violations = append(violations, Violation{
			Rule:    RuleMinLength,
			Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		})
	}
	if !hasLower {
		violations = append(violations, Violation{Rule: RuleLowercase, Message: "must contain a lowercase letter"})
	}
	if !hasUpper {
		violations = append(violations, Violation{Rule: RuleUppercase, Message: "must contain an uppercase letter"})
	}
	if !hasDigit {
		violations = append(violations, Violation{Rule: RuleDigit, Message: "must contain a digit"})
	}
	if !hasSpecial {
		violations = append(violations, Violation{Rule: RuleSpecial, Message: "must contain a special character"})
	}
	return violations
}

// checkPassword returns a *PolicyError when password violates the policy.
func checkPassword(password string) error {
	if v := ValidatePassword(password); len(v) > 0 {
		return &PolicyError{Violations: v}
	}
	return nil
}
