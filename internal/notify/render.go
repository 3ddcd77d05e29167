// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package notify

import (
	"embed"
	"strings"
	"text/template"

	"github.com/samber/oops"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = map[Kind]*template.Template{
	KindOTP:           template.Must(template.ParseFS(templateFS, "templates/otp.tmpl")),
	KindPasswordReset: template.Must(template.ParseFS(templateFS, "templates/password_reset.tmpl")),
	KindInvite:        template.Must(template.ParseFS(templateFS, "templates/invite.tmpl")),
}

type templateData struct {
	Address string
	Code    string
	Link    string
}

// render builds the message of the given kind.
func render(kind Kind, to string, data templateData) (Message, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return Message{}, oops.With("kind", kind).Errorf("unknown message kind")
	}

	var subject, body strings.Builder
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, oops.With("kind", kind).With("part", "subject").Wrap(err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", data); err != nil {
		return Message{}, oops.With("kind", kind).With("part", "body").Wrap(err)
	}

	return Message{
		Kind:    kind,
		To:      to,
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}, nil
}
