// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package account

import (
	"github.com/qread/qread/internal/apperr"
)

func errNotFound(f Filter) error {
	var kv []any
	if f.ID != nil {
		kv = append(kv, "account_id", *f.ID)
	}
	if f.Email != nil {
		kv = append(kv, "email", *f.Email)
	}
	return apperr.NewWith(apperr.KindNotFound, kv, "account not found")
}

// ErrAlreadyExists returns the duplicate-email error.
func ErrAlreadyExists(email string) error {
	return apperr.NewWith(apperr.KindAlreadyExists, []any{"email", email}, "an account with this email already exists")
}
