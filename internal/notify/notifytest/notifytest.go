// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package notifytest provides notification doubles for tests.
package notifytest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/qread/qread/internal/notify"
)

// Call is one recorded Gateway call.
type Call struct {
	Kind     notify.Kind
	Address  string
	Code     string
	Secret   string
	Redirect string
}

// Recorder is a Gateway that records calls synchronously.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// SendOTP records a passcode.
func (r *Recorder) SendOTP(_ context.Context, address, code string) {
	r.record(Call{Kind: notify.KindOTP, Address: address, Code: code})
}

// SendPasswordReset records a reset secret.
func (r *Recorder) SendPasswordReset(_ context.Context, address, secret, redirect string) {
	r.record(Call{Kind: notify.KindPasswordReset, Address: address, Secret: secret, Redirect: redirect})
}

// SendInvite records an invitation secret.
func (r *Recorder) SendInvite(_ context.Context, address, secret, redirect string) {
	r.record(Call{Kind: notify.KindInvite, Address: address, Secret: secret, Redirect: redirect})
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Last returns the most recent call of kind to address.
func (r *Recorder) Last(kind notify.Kind, address string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if c := r.calls[i]; c.Kind == kind && c.Address == address {
			return c, true
		}
	}
	return Call{}, false
}

// LastOTP returns the most recent passcode sent to address.
func (r *Recorder) LastOTP(address string) (string, bool) {
	c, ok := r.Last(notify.KindOTP, address)
	return c.Code, ok
}

// Count returns how many calls of kind were recorded.
func (r *Recorder) Count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// MockSender is a testify mock of notify.Sender.
type MockSender struct {
	mock.Mock
}

// NewMockSender creates a MockSender whose expectations are asserted at
// test cleanup.
func NewMockSender(t *testing.T) *MockSender {
	m := &MockSender{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Send records the call and returns the configured error.
func (m *MockSender) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

var (
	_ notify.Gateway = (*Recorder)(nil)
	_ notify.Sender  = (*MockSender)(nil)
)
