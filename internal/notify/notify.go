// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package notify delivers account mail: one-time passcodes, password reset
// links and librarian invitations.
//
// Callers talk to a Gateway, which never blocks on delivery and never
// reports failure. The Dispatcher implements Gateway on top of a blocking
// Sender, retrying each message in the background.
package notify

import (
	"context"
	"net/url"
	"strings"
)

// Gateway hands messages off for delivery.
type Gateway interface {
	SendOTP(ctx context.Context, address, code string)
	SendPasswordReset(ctx context.Context, address, secret, redirect string)
	SendInvite(ctx context.Context, address, secret, redirect string)
}

// Kind names a message template.
type Kind string

// Message kinds.
const (
	KindOTP           Kind = "otp"
	KindPasswordReset Kind = "password_reset"
	KindInvite        Kind = "invite"
)

// Message is one rendered mail.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	Body    string
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SecretLink appends secret to the redirect hint as the "secret" query
// parameter. An unparseable hint gets the parameter appended verbatim.
func SecretLink(redirect, secret string) string {
	u, err := url.Parse(redirect)
	if err != nil {
		sep := "?"
		if strings.Contains(redirect, "?") {
			sep = "&"
		}
		return redirect + sep + "secret=" + url.QueryEscape(secret)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	return u.String()
}
