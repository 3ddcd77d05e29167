// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package web

import (
	"context"
	"log/slog"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/internal/auth"
	"github.com/qread/qread/internal/observability"
)

const sessionContextKey = "qread.session"

// SessionChecker validates session tokens.
type SessionChecker interface {
	CheckSessionValid(ctx context.Context, token string) (*auth.Session, bool, error)
}

// Gate admits requests that carry a valid session of an allowed role.
type Gate struct {
	sessions SessionChecker
	metrics  *observability.AuthMetrics
	logger   *slog.Logger
}

// NewGate creates a Gate. metrics and logger may be nil.
func NewGate(sessions SessionChecker, metrics *observability.AuthMetrics, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{sessions: sessions, metrics: metrics, logger: logger}
}

// Require returns middleware admitting sessions whose role is one of
// roles, or any role when none are given. The account is re-read on every
// request.
func (g *Gate) Require(roles ...account.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			sess, ok, err := g.sessions.CheckSessionValid(ctx, cookieValue(c, SessionCookie))
			if err != nil {
				g.metrics.GateDecision(observability.OutcomeError)
				return err
			}
			if !ok {
				g.metrics.GateDecision(observability.OutcomeNoSession)
				return errUnauthorized()
			}
			if len(roles) > 0 && !slices.Contains(roles, sess.Role) {
				g.metrics.GateDecision(observability.OutcomeForbidden)
				g.logger.InfoContext(ctx, "role rejected", "account_id", sess.AccountID, "role", sess.Role, "required", roles)
				return errUnauthorized()
			}

			g.metrics.GateDecision(observability.OutcomeSuccess)
			c.Set(sessionContextKey, sess)
			return next(c)
		}
	}
}

// SessionFrom returns the session admitted by the Gate, or nil.
func SessionFrom(c echo.Context) *auth.Session {
	sess, _ := c.Get(sessionContextKey).(*auth.Session)
	return sess
}

func errUnauthorized() error {
	return apperr.New(apperr.KindUnauthorized, "unauthorized")
}
