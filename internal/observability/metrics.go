// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the auth counters.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalid            = "invalid"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeAccountState       = "account_state"
	OutcomeError              = "error"
	OutcomeNoSession          = "no_session"
	OutcomeForbidden          = "forbidden"
)

// AuthMetrics holds the counters recorded by the auth core. A nil
// *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	LoginAttempts    *prometheus.CounterVec
	OTPVerifications *prometheus.CounterVec
	GateDecisions    *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

// NewAuthMetrics creates the auth counters and registers them with reg.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qread_login_attempts_total",
				Help: "Password login attempts by outcome",
			},
			[]string{"outcome"},
		),
		OTPVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qread_otp_verifications_total",
				Help: "One-time passcode verifications by outcome",
			},
			[]string{"outcome"},
		),
		GateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qread_gate_decisions_total",
				Help: "Authorization gate decisions by outcome",
			},
			[]string{"outcome"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qread_notifications_total",
				Help: "Notification deliveries by kind and status",
			},
			[]string{"kind", "status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qread_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(m.LoginAttempts, m.OTPVerifications, m.GateDecisions, m.Notifications, m.HTTPRequests)
	return m
}

// LoginAttempt records one password login attempt.
func (m *AuthMetrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// OTPVerification records one passcode verification.
func (m *AuthMetrics) OTPVerification(outcome string) {
	if m == nil {
		return
	}
	m.OTPVerifications.WithLabelValues(outcome).Inc()
}

// GateDecision records one authorization gate decision.
func (m *AuthMetrics) GateDecision(outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(outcome).Inc()
}

// Notification records the final status of one notification.
func (m *AuthMetrics) Notification(kind, status string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind, status).Inc()
}

// HTTPRequest records one served request.
func (m *AuthMetrics) HTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
