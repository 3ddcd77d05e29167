// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/oops"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/secret"
)

// PendingAuthentication records a client that passed the password step and
// still owes a passcode.
type PendingAuthentication struct {
	AccountID int64        `json:"account_id"`
	Role      account.Role `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
	// Verified is set once the passcode matched; the record can not be
	// promoted again.
	Verified bool `json:"verified,omitempty"`
}

func pendingKey(hash string) string { return "pending:" + hash }

// BeginPending stores p under a fresh token and returns the token. The
// record behind previousToken, if any, is dropped: a client holds one
// pending sign-in at a time.
func (s *Service) BeginPending(ctx context.Context, previousToken string, p *PendingAuthentication) (string, error) {
	if previousToken != "" {
		if err := s.cache.Delete(ctx, pendingKey(secret.HashToken(previousToken))); err != nil {
			return "", oops.With("operation", "drop previous pending sign-in").Wrap(err)
		}
	}

	token, hash, err := secret.NewToken()
	if err != nil {
		return "", oops.With("operation", "generate pending token").Wrap(err)
	}
	if err := s.putPending(ctx, hash, p, s.cfg.OTPTTL); err != nil {
		return "", err
	}
	return token, nil
}

// LookupPending returns the pending record behind token, or
// NotAuthenticated.
func (s *Service) LookupPending(ctx context.Context, token string) (*PendingAuthentication, error) {
	if token == "" {
		return nil, errNotAuthenticated()
	}
	raw, ok, err := s.cache.Get(ctx, pendingKey(secret.HashToken(token)))
	if err != nil {
		return nil, oops.With("operation", "load pending sign-in").Wrap(err)
	}
	if !ok {
		return nil, errNotAuthenticated()
	}
	var p PendingAuthentication
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, oops.With("operation", "decode pending sign-in").Wrap(err)
	}
	return &p, nil
}

// markVerified rewrites the pending record as spent for the rest of its
// lifetime. A record that already expired or was dropped stays gone.
func (s *Service) markVerified(ctx context.Context, hash string, p *PendingAuthentication) error {
	ttl := p.CreatedAt.Add(s.cfg.OTPTTL).Sub(s.now())
	if ttl <= 0 {
		return s.cache.Delete(ctx, pendingKey(hash))
	}
	p.Verified = true
	raw, err := json.Marshal(p)
	if err != nil {
		return oops.With("operation", "marshal pending sign-in").Wrap(err)
	}
	if _, err := s.cache.Refresh(ctx, pendingKey(hash), raw, ttl); err != nil {
		return oops.With("operation", "mark pending sign-in verified").With("account_id", p.AccountID).Wrap(err)
	}
	return nil
}

func (s *Service) putPending(ctx context.Context, hash string, p *PendingAuthentication, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return oops.With("operation", "marshal pending sign-in").Wrap(err)
	}
	if err := s.cache.Put(ctx, pendingKey(hash), raw, ttl); err != nil {
		return oops.With("operation", "store pending sign-in").With("account_id", p.AccountID).Wrap(err)
	}
	return nil
}
