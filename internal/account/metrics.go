// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Status labels for reset metrics.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
	StatusInvalid  = "invalid"
	StatusDelivery = "delivery_failed"
)

// LoginAttempts counts login decisions by outcome.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "acctgate_login_attempts_total",
		Help: "Total number of login decisions by outcome",
	},
	[]string{"outcome"},
)

// Lockouts counts accounts that were locked by failed logins.
var Lockouts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "acctgate_lockouts_total",
		Help: "Total number of accounts locked after repeated failures",
	},
)

// ResetOperations counts password reset operations by stage and status.
var ResetOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "acctgate_password_reset_operations_total",
		Help: "Total number of password reset operations by stage and status",
	},
	[]string{"stage", "status"},
)

// RegisterMetrics registers account metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(Lockouts)
	reg.MustRegister(ResetOperations)
}

func recordLogin(outcome string) {
	LoginAttempts.WithLabelValues(outcome).Inc()
}

func recordReset(stage, status string) {
	ResetOperations.WithLabelValues(stage, status).Inc()
}
