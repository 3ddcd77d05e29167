// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package apperr defines the error kinds shared by the QRead services.
//
// Every business-rule failure carries an oops code naming its Kind.
// Anything without a business kind is an infrastructure fault and
// classifies as KindDatabase.
package apperr

import (
	"fmt"

	"github.com/samber/oops"
)

// Kind names a class of failure. It is stored as the oops error code.
type Kind string

// Error kinds.
const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindNotFound               Kind = "NOT_FOUND"
	KindInvalidCredentials     Kind = "INVALID_CREDENTIALS"
	KindInvalidOTP             Kind = "INVALID_OTP"
	KindInvalidOrExpiredSecret Kind = "INVALID_OR_EXPIRED_SECRET"
	KindNotAuthenticated       Kind = "NOT_AUTHENTICATED"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindAccountState           Kind = "ACCOUNT_STATE_ERROR"
	KindAlreadyExists          Kind = "ALREADY_EXISTS"
	KindDatabase               Kind = "DATABASE_ERROR"
)

var businessKinds = map[Kind]struct{}{
	KindValidation:             {},
	KindNotFound:               {},
	KindInvalidCredentials:     {},
	KindInvalidOTP:             {},
	KindInvalidOrExpiredSecret: {},
	KindNotAuthenticated:       {},
	KindUnauthorized:           {},
	KindAccountState:           {},
	KindAlreadyExists:          {},
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return oops.Code(string(kind)).Errorf(format, args...)
}

// NewWith is like New but attaches key/value context to the error.
func NewWith(kind Kind, kv []any, format string, args ...any) error {
	return oops.Code(string(kind)).With(kv...).Errorf(format, args...)
}

// Database wraps an infrastructure fault. A nil err yields nil.
func Database(err error) error {
	if err == nil {
		return nil
	}
	return oops.Code(string(KindDatabase)).Wrapf(err, "database operation failed")
}

// KindOf reports the kind of err. Errors without a business kind,
// including plain errors from drivers, are KindDatabase. A nil error has
// no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindDatabase
	}
	kind := Kind(fmt.Sprint(oopsErr.Code()))
	if _, ok := businessKinds[kind]; ok {
		return kind
	}
	return KindDatabase
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsBusiness reports whether err is a deliberate business-rule failure
// that must cross the transaction boundary unchanged.
func IsBusiness(err error) bool {
	if err == nil {
		return false
	}
	_, ok := businessKinds[KindOf(err)]
	return ok
}
