// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthMetrics_Counters(t *testing.T) {
	m := NewAuthMetrics(prometheus.NewRegistry())

	m.LoginAttempt(OutcomeInvalidCredentials)
	m.LoginAttempt(OutcomeInvalidCredentials)
	m.OTPVerification(OutcomeSuccess)
	m.GateDecision(OutcomeForbidden)
	m.Notification("otp", "sent")

	assert.InDelta(t, 2, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(OutcomeInvalidCredentials)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OTPVerifications.WithLabelValues(OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GateDecisions.WithLabelValues(OutcomeForbidden)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Notifications.WithLabelValues("otp", "sent")), 0)
}

func TestAuthMetrics_NilIsNoop(t *testing.T) {
	var m *AuthMetrics
	assert.NotPanics(t, func() {
		m.LoginAttempt(OutcomeSuccess)
		m.OTPVerification(OutcomeInvalid)
		m.GateDecision(OutcomeNoSession)
		m.Notification("invite", "failed")
		m.HTTPRequest("GET", "/me", 200)
	})
}
