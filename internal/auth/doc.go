// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package auth implements two-step sign-in and session validation.
//
// # Flow
//
//   - Authenticate checks email, password and role, then mails a six-digit
//     one-time passcode and returns a PendingAuthentication.
//   - BeginPending stores the pending record under a random token that the
//     client carries between the two steps.
//   - VerifyOTP consumes the passcode and mints a Session.
//   - CheckSessionValid re-reads the account on every call, so suspension
//     or deletion takes effect on the next request.
//
// Passcodes, pending records and sessions all live in a secret.Cache; only
// SHA-256 hashes of client tokens are used as keys.
package auth
