// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
)

// Message is the body of a successful response without data.
type Message struct {
	Message string `json:"message"`
}

// AccountResponse carries one account.
type AccountResponse struct {
	Message string          `json:"message,omitempty"`
	Account account.Summary `json:"account"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	OTP string `json:"otp"`
}

type emailRequest struct {
	Email    string `json:"email"`
	Redirect string `json:"redirect"`
}

type resetRequest struct {
	Secret   string `json:"secret"`
	Password string `json:"password"`
}

type newLibrarianRequest struct {
	Secret   string `json:"secret"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.New(apperr.KindValidation, "malformed request body")
	}
	return nil
}

func (s *Server) handleLogin(c echo.Context) error {
	role, err := account.ParseRole(c.Param("role"))
	if err != nil {
		return apperr.NewWith(apperr.KindNotFound, []any{"path", c.Param("role")}, "unknown path %q", c.Param("role"))
	}
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	pending, err := s.auth.Authenticate(ctx, req.Email, req.Password, role)
	if err != nil {
		return err
	}
	token, err := s.auth.BeginPending(ctx, cookieValue(c, PendingCookie), pending)
	if err != nil {
		return err
	}
	s.setCookie(c, PendingCookie, token, s.auth.Config().OTPTTL)
	return c.JSON(http.StatusOK, Message{Message: "one-time passcode sent"})
}

func (s *Server) handleVerifyOTP(c echo.Context) error {
	var req otpRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	sess, token, err := s.auth.VerifyOTP(c.Request().Context(), cookieValue(c, PendingCookie), strings.TrimSpace(req.OTP))
	if err != nil {
		return err
	}
	s.clearCookie(c, PendingCookie)
	s.setCookie(c, SessionCookie, token, s.auth.Config().SessionAbsoluteTTL)
	return c.JSON(http.StatusOK, map[string]any{
		"message":    "login successful",
		"account_id": sess.AccountID,
		"role":       sess.Role,
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.auth.Logout(ctx, cookieValue(c, SessionCookie)); err != nil {
		s.logger.WarnContext(ctx, "logout did not reach the session store", "error", err)
	}
	s.clearCookie(c, SessionCookie)
	s.clearCookie(c, PendingCookie)
	return c.JSON(http.StatusOK, Message{Message: "logged out"})
}

func (s *Server) handleForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	err := s.provision.ForgotPassword(ctx, req.Email, req.Redirect)
	if apperr.Is(err, apperr.KindNotFound) {
		s.logger.DebugContext(ctx, "password reset requested for unknown account")
		err = nil
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Message{Message: "if the account exists, a reset link has been sent"})
}

func (s *Server) handleResetPassword(c echo.Context) error {
	var req resetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Secret == "" {
		return apperr.New(apperr.KindValidation, "secret is required")
	}

	if err := s.provision.ResetPassword(c.Request().Context(), req.Secret, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Message{Message: "password updated"})
}

func (s *Server) handleRegisterLibrarian(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := s.provision.InviteLibrarian(c.Request().Context(), req.Email, req.Redirect); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Message{Message: "invitation sent"})
}

func (s *Server) handleNewLibrarian(c echo.Context) error {
	var req newLibrarianRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Secret == "" {
		return apperr.New(apperr.KindValidation, "secret is required")
	}

	created, err := s.provision.RedeemLibrarianInvite(c.Request().Context(), req.Secret, req.Name, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AccountResponse{Message: "librarian created", Account: created.Summary()})
}

func (s *Server) handleRegisterBorrower(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	created, err := s.provision.RegisterBorrower(c.Request().Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AccountResponse{Message: "registered", Account: created.Summary()})
}

func (s *Server) handleMe(c echo.Context) error {
	sess := SessionFrom(c)
	a, err := account.FindOne(c.Request().Context(), s.accounts, account.ByID(sess.AccountID))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AccountResponse{Account: a.Summary()})
}

func (s *Server) handleChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	sess := SessionFrom(c)
	if err := s.provision.ChangePassword(c.Request().Context(), sess.AccountID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Message{Message: "password updated"})
}

func (s *Server) handleListAccounts(c echo.Context) error {
	var f account.Filter
	if v := c.QueryParam("role"); v != "" {
		role, err := account.ParseRole(v)
		if err != nil {
			return err
		}
		f.Role = &role
	}
	if v := c.QueryParam("state"); v != "" {
		state, err := account.ParseState(v)
		if err != nil {
			return err
		}
		f.State = &state
	}
	if v := c.QueryParam("email"); v != "" {
		email := account.NormalizeEmail(v)
		f.Email = &email
	}

	found, err := s.admin.ListAccounts(c.Request().Context(), f)
	if err != nil {
		return err
	}
	out := make([]account.Summary, 0, len(found))
	for _, a := range found {
		out = append(out, a.Summary())
	}
	return c.JSON(http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleSuspend(c echo.Context) error {
	return s.transition(c, s.admin.Suspend)
}

func (s *Server) handleReinstate(c echo.Context) error {
	return s.transition(c, s.admin.Reinstate)
}

func (s *Server) handleDelete(c echo.Context) error {
	return s.transition(c, s.admin.Delete)
}

type transitionFunc func(ctx context.Context, actorID, id int64) (*account.Account, error)

func (s *Server) transition(c echo.Context, fn transitionFunc) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperr.NewWith(apperr.KindValidation, []any{"id", c.Param("id")}, "invalid account id")
	}

	updated, err := fn(c.Request().Context(), SessionFrom(c).AccountID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AccountResponse{Account: updated.Summary()})
}
