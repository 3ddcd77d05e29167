// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package web serves the QRead HTTP API on echo.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/admin"
	"github.com/qread/qread/internal/auth"
	"github.com/qread/qread/internal/observability"
	"github.com/qread/qread/internal/provision"
)

// Config configures the HTTP listener.
type Config struct {
	Addr            string        `koanf:"addr"`
	CookieSecure    bool          `koanf:"cookie_secure"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DefaultConfig listens on :8080 with secure cookies.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		CookieSecure:    true,
		ReadTimeout:     15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Deps are the services behind the API. Logger and Metrics are optional.
type Deps struct {
	Auth      *auth.Service
	Provision *provision.Service
	Admin     *admin.Service
	Accounts  account.Repository
	Logger    *slog.Logger
	Metrics   *observability.AuthMetrics
}

// Server is the HTTP API.
type Server struct {
	cfg       Config
	echo      *echo.Echo
	auth      *auth.Service
	provision *provision.Service
	admin     *admin.Service
	accounts  account.Repository
	gate      *Gate
	logger    *slog.Logger
	metrics   *observability.AuthMetrics
}

// NewServer builds the router.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Errorf("auth service is required")
	case deps.Provision == nil:
		return nil, oops.Errorf("provisioning service is required")
	case deps.Admin == nil:
		return nil, oops.Errorf("admin service is required")
	case deps.Accounts == nil:
		return nil, oops.Errorf("account repository is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		echo:      echo.New(),
		auth:      deps.Auth,
		provision: deps.Provision,
		admin:     deps.Admin,
		accounts:  deps.Accounts,
		gate:      NewGate(deps.Auth, deps.Metrics, deps.Logger),
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.ReadHeaderTimeout = 10 * time.Second

	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return ulid.Make().String() },
	}))
	s.echo.Use(s.requestLogger())
	s.echo.Use(middleware.Recover())

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.POST("/:role/login", s.handleLogin)
	e.POST("/verify-otp", s.handleVerifyOTP)
	e.POST("/logout", s.handleLogout)
	e.POST("/forgot-password", s.handleForgotPassword)
	e.POST("/reset-password", s.handleResetPassword)
	e.POST("/new-librarian", s.handleNewLibrarian)
	e.POST("/borrower/register", s.handleRegisterBorrower)

	authed := s.gate.Require()
	e.GET("/me", s.handleMe, authed)
	e.POST("/change-password", s.handleChangePassword, authed)

	// Per-route middleware keeps /admin/login reachable through /:role/login.
	adminOnly := s.gate.Require(account.RoleAdmin)
	e.POST("/admin/register-librarian", s.handleRegisterLibrarian, adminOnly)
	e.GET("/admin/accounts", s.handleListAccounts, adminOnly)
	e.POST("/admin/accounts/:id/suspend", s.handleSuspend, adminOnly)
	e.POST("/admin/accounts/:id/reinstate", s.handleReinstate, adminOnly)
	e.POST("/admin/accounts/:id/delete", s.handleDelete, adminOnly)
}

// requestLogger writes one log line and one metric per request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.metrics.HTTPRequest(v.Method, v.RoutePath, v.Status)
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("route", v.RoutePath),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server started", "addr", s.cfg.Addr)
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown http server").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}
