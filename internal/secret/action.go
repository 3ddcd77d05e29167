// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package secret

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/qread/qread/internal/apperr"
)

// Purpose tags what an action secret authorizes.
type Purpose string

// Action purposes.
const (
	PurposePasswordReset   Purpose = "password-reset"
	PurposeLibrarianInvite Purpose = "librarian-invite"
)

// Action is the record stored behind an action secret.
type Action struct {
	Purpose   Purpose   `json:"purpose"`
	AccountID int64     `json:"account_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// subject identifies who the secret is bound to; at most one live secret
// exists per purpose and subject.
func (a Action) subject() string {
	if a.AccountID != 0 {
		return "account:" + strconv.FormatInt(a.AccountID, 10)
	}
	return "email:" + strings.ToLower(a.Email)
}

func actionKey(hash string) string { return "action:" + hash }

func indexKey(a Action) string { return "action-index:" + string(a.Purpose) + ":" + a.subject() }

// Actions issues and redeems single-use action secrets.
type Actions struct {
	cache Cache
	now   func() time.Time
}

// NewActions creates an Actions store over cache.
func NewActions(cache Cache) *Actions {
	return &Actions{cache: cache, now: time.Now}
}

// Issue stores a for ttl under a fresh token and returns the plaintext
// token. Any earlier secret for the same purpose and subject is revoked:
// the index swap is atomic, so of several concurrent issues only the last
// to swap stays redeemable.
func (s *Actions) Issue(ctx context.Context, a Action, ttl time.Duration) (string, error) {
	token, hash, err := NewToken()
	if err != nil {
		return "", err
	}
	a.ExpiresAt = s.now().Add(ttl)

	raw, err := json.Marshal(a)
	if err != nil {
		return "", oops.With("operation", "marshal action").Wrap(err)
	}
	if err := s.cache.Put(ctx, actionKey(hash), raw, ttl); err != nil {
		return "", oops.With("operation", "store action").With("purpose", a.Purpose).Wrap(err)
	}

	prev, ok, err := s.cache.Swap(ctx, indexKey(a), []byte(hash), ttl)
	if err != nil {
		_ = s.cache.Delete(ctx, actionKey(hash)) //nolint:errcheck // swap error takes precedence
		return "", oops.With("operation", "swap action index").With("purpose", a.Purpose).Wrap(err)
	}
	if ok && string(prev) != hash {
		if err := s.cache.Delete(ctx, actionKey(string(prev))); err != nil {
			return "", oops.With("operation", "revoke previous action").With("purpose", a.Purpose).Wrap(err)
		}
	}
	return token, nil
}

// Redeem consumes the secret for the given purpose. Unknown, expired and
// wrong-purpose tokens all fail with the same InvalidOrExpiredSecret error.
// A wrong-purpose secret is left in place.
func (s *Actions) Redeem(ctx context.Context, token string, purpose Purpose) (*Action, error) {
	if token == "" {
		return nil, errInvalidSecret()
	}
	key := actionKey(HashToken(token))

	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, oops.With("operation", "load action").Wrap(err)
	}
	if !ok {
		return nil, errInvalidSecret()
	}
	peeked, err := decodeAction(raw)
	if err != nil {
		return nil, err
	}
	if peeked.Purpose != purpose {
		return nil, errInvalidSecret()
	}

	raw, ok, err = s.cache.Take(ctx, key)
	if err != nil {
		return nil, oops.With("operation", "take action").Wrap(err)
	}
	if !ok {
		return nil, errInvalidSecret()
	}
	a, err := decodeAction(raw)
	if err != nil {
		return nil, err
	}
	if a.Purpose != purpose {
		return nil, errInvalidSecret()
	}
	return a, nil
}

// Restore puts a redeemed secret back for the rest of its lifetime. It is
// used when the follow-up work failed for infrastructure reasons. A secret
// superseded by a newer issue in the meantime stays revoked.
func (s *Actions) Restore(ctx context.Context, token string, a *Action) error {
	ttl := a.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	hash := HashToken(token)
	current, ok, err := s.cache.Get(ctx, indexKey(*a))
	if err != nil {
		return oops.With("operation", "load action index").With("purpose", a.Purpose).Wrap(err)
	}
	if !ok || string(current) != hash {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return oops.With("operation", "marshal action").Wrap(err)
	}
	if err := s.cache.Put(ctx, actionKey(hash), raw, ttl); err != nil {
		return oops.With("operation", "restore action").With("purpose", a.Purpose).Wrap(err)
	}
	return nil
}

func decodeAction(raw []byte) (*Action, error) {
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, oops.With("operation", "unmarshal action").Wrap(err)
	}
	return &a, nil
}

func errInvalidSecret() error {
	return apperr.New(apperr.KindInvalidOrExpiredSecret, "invalid or expired secret")
}
