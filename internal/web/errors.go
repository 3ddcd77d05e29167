// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/pkg/errutil"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindAlreadyExists, apperr.KindAccountState:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidCredentials, apperr.KindInvalidOTP, apperr.KindInvalidOrExpiredSecret,
		apperr.KindNotAuthenticated, apperr.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// kindForStatus names the kind of a framework error such as a bind failure
// or an unknown route.
func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(apperr.KindValidation)
	case http.StatusUnauthorized:
		return string(apperr.KindUnauthorized)
	case http.StatusNotFound:
		return string(apperr.KindNotFound)
	}
	return fmt.Sprintf("HTTP_%d", status)
}

// handleError renders err as ErrorBody. Internal faults are logged and
// their details withheld.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := s.errorResponse(c, err)
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.WarnContext(c.Request().Context(), "write error response", "error", err)
	}
}

func (s *Server) errorResponse(c echo.Context, err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		return he.Code, ErrorBody{Error: msg, Code: kindForStatus(he.Code)}
	}

	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	if status == http.StatusInternalServerError {
		errutil.LogError(c.Request().Context(), s.logger, "request failed", err)
		return status, ErrorBody{Error: "internal error", Code: string(apperr.KindDatabase)}
	}
	return status, ErrorBody{Error: err.Error(), Code: string(kind)}
}
