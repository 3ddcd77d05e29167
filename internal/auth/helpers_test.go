// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/auth"
	"github.com/qread/qread/internal/credential"
	"github.com/qread/qread/internal/notify/notifytest"
	"github.com/qread/qread/internal/observability"
	"github.com/qread/qread/internal/secret"
)

// fastParams keeps argon2id cheap in tests.
var fastParams = credential.Params{Time: 1, MemoryKiB: 64, Threads: 1}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      *auth.Service
	store    *account.MemoryStore
	cache    *secret.MemoryCache
	mail     *notifytest.Recorder
	hasher   *credential.Argon2idHasher
	clock    *fakeClock
	metrics  *observability.AuthMetrics
	cfg      auth.Config
	ctx      context.Context
	accounts map[string]*account.Account
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithCache(t, func(c secret.Cache) secret.Cache { return c })
}

// newHarnessWithCache builds a harness whose service sees the memory cache
// through wrap.
func newHarnessWithCache(t *testing.T, wrap func(secret.Cache) secret.Cache) *harness {
	t.Helper()
	h := &harness{
		store:    account.NewMemoryStore(),
		mail:     notifytest.NewRecorder(),
		hasher:   credential.NewArgon2idHasher(fastParams),
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		metrics:  observability.NewAuthMetrics(prometheus.NewRegistry()),
		cfg:      auth.DefaultConfig(),
		ctx:      context.Background(),
		accounts: make(map[string]*account.Account),
	}
	h.cache = secret.NewMemoryCache(secret.WithClock(h.clock.Now))

	svc, err := auth.NewService(h.cfg, auth.Deps{
		Accounts: h.store,
		Tx:       h.store,
		Hasher:   h.hasher,
		Cache:    wrap(h.cache),
		Notifier: h.mail,
		Metrics:  h.metrics,
		Clock:    h.clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

// seed inserts an account with password hashed by hasher.
func (h *harness) seed(t *testing.T, hasher credential.Hasher, name, email, password string, role account.Role, state account.State) *account.Account {
	t.Helper()
	cred, err := hasher.Hash(password)
	require.NoError(t, err)
	a, err := h.store.Insert(h.ctx, account.NewAccount{Name: name, Email: email, Credential: cred, Role: role, State: state})
	require.NoError(t, err)
	h.accounts[email] = a
	return a
}

// login runs the password step and returns the pending token and the
// mailed passcode.
func (h *harness) login(t *testing.T, email, password string, role account.Role) (string, string) {
	t.Helper()
	pending, err := h.svc.Authenticate(h.ctx, email, password, role)
	require.NoError(t, err)
	token, err := h.svc.BeginPending(h.ctx, "", pending)
	require.NoError(t, err)
	code, ok := h.mail.LastOTP(email)
	require.True(t, ok, "no passcode mailed to %s", email)
	return token, code
}

// signIn completes both steps and returns the session token.
func (h *harness) signIn(t *testing.T, email, password string, role account.Role) string {
	t.Helper()
	pendingToken, code := h.login(t, email, password, role)
	_, token, err := h.svc.VerifyOTP(h.ctx, pendingToken, code)
	require.NoError(t, err)
	return token
}

func (h *harness) setState(t *testing.T, id int64, state account.State) {
	t.Helper()
	a, err := account.FindOne(h.ctx, h.store, account.ByID(id))
	require.NoError(t, err)
	a.State = state
	require.NoError(t, h.store.Update(h.ctx, a))
}

// wrongCode returns a six-digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

// slowCache adds a round trip delay to reads, like a networked cache.
type slowCache struct {
	secret.Cache
	delay time.Duration
}

func (c slowCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	time.Sleep(c.delay)
	return c.Cache.Get(ctx, key)
}
