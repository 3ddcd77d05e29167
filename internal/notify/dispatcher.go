// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/qread/qread/internal/observability"
	"github.com/qread/qread/pkg/errutil"
)

// Delivery statuses recorded in metrics.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// DispatchConfig controls retrying.
type DispatchConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
}

// DefaultDispatchConfig returns three attempts starting at 500ms.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond}
}

// Dispatcher is a Gateway that sends each message on its own goroutine
// with exponential backoff. Failures are logged and counted.
type Dispatcher struct {
	sender  Sender
	cfg     DispatchConfig
	logger  *slog.Logger
	metrics *observability.AuthMetrics

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(sender Sender, cfg DispatchConfig, logger *slog.Logger, metrics *observability.AuthMetrics) (*Dispatcher, error) {
	if sender == nil {
		return nil, oops.Errorf("notification sender is required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultDispatchConfig().InitialBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		base:    base,
		cancel:  cancel,
	}, nil
}

// SendOTP queues a sign-in code.
func (d *Dispatcher) SendOTP(ctx context.Context, address, code string) {
	d.dispatch(ctx, KindOTP, address, templateData{Address: address, Code: code})
}

// SendPasswordReset queues a reset link.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, address, secret, redirect string) {
	d.dispatch(ctx, KindPasswordReset, address, templateData{Address: address, Link: SecretLink(redirect, secret)})
}

// SendInvite queues a librarian invitation.
func (d *Dispatcher) SendInvite(ctx context.Context, address, secret, redirect string) {
	d.dispatch(ctx, KindInvite, address, templateData{Address: address, Link: SecretLink(redirect, secret)})
}

func (d *Dispatcher) dispatch(ctx context.Context, kind Kind, address string, data templateData) {
	msg, err := render(kind, address, data)
	if err != nil {
		errutil.LogError(ctx, d.logger, "render notification", err)
		d.metrics.Notification(string(kind), StatusFailed)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.WarnContext(ctx, "notification dropped after shutdown", "kind", kind, "to", address)
		d.metrics.Notification(string(kind), StatusDropped)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.deliver(msg)
	}()
}

func (d *Dispatcher) deliver(msg Message) {
	backoff := retry.WithMaxRetries(uint64(d.cfg.MaxAttempts-1), retry.NewExponential(d.cfg.InitialBackoff)) //nolint:gosec // MaxAttempts >= 1

	attempt := 0
	err := retry.Do(d.base, backoff, func(ctx context.Context) error {
		attempt++
		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.DebugContext(ctx, "notification attempt failed",
				"kind", msg.Kind, "to", msg.To, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		errutil.LogError(d.base, d.logger, "notification delivery failed",
			oops.With("kind", msg.Kind).With("to", msg.To).With("attempts", attempt).Wrap(err))
		d.metrics.Notification(string(msg.Kind), StatusFailed)
		return
	}
	d.metrics.Notification(string(msg.Kind), StatusSent)
}

// Close stops accepting messages and waits for in-flight deliveries. When
// ctx ends first, outstanding retries are cancelled and ctx's error is
// returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return oops.With("operation", "drain notifications").Wrap(ctx.Err())
	}
}

var _ Gateway = (*Dispatcher)(nil)
