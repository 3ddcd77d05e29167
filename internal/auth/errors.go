// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package auth

import "github.com/qread/qread/internal/apperr"

// Rejection messages are generic so they reveal nothing about the account.

func errInvalidCredentials() error {
	return apperr.New(apperr.KindInvalidCredentials, "invalid email or password")
}

func errNotAuthenticated() error {
	return apperr.New(apperr.KindNotAuthenticated, "no sign-in in progress")
}

func errInvalidOTP() error {
	return apperr.New(apperr.KindInvalidOTP, "invalid one-time passcode")
}
