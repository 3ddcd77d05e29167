// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"
)

// LogSender writes messages to the log instead of mailing them. It is the
// development backend.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail",
		"kind", msg.Kind,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string //nolint:gosec // G117: loaded from the environment
	From     string
	// TLS requires STARTTLS when true; otherwise TLS is opportunistic.
	TLS bool
}

// SMTPSender delivers messages over SMTP.
type SMTPSender struct {
	cfg  SMTPConfig
	opts []mail.Option
}

// NewSMTPSender validates cfg and returns a sender. It does not dial.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("VALIDATION_ERROR").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("VALIDATION_ERROR").Errorf("smtp from address is required")
	}

	opts := []mail.Option{mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if cfg.TLS {
		opts[0] = mail.WithTLSPolicy(mail.TLSMandatory)
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}
	return &SMTPSender{cfg: cfg, opts: opts}, nil
}

// Send dials the server and delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return oops.With("host", s.cfg.Host).Wrap(err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.With("host", s.cfg.Host).With("kind", msg.Kind).Wrap(err)
	}
	return nil
}

func (s *SMTPSender) build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, oops.With("from", s.cfg.From).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.With("to", msg.To).Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
