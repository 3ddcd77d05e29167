// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/secret"
)

// Session is an authenticated client.
type Session struct {
	ID         ulid.ULID    `json:"id"`
	AccountID  int64        `json:"account_id"`
	Role       account.Role `json:"role"`
	IssuedAt   time.Time    `json:"issued_at"`
	LastSeenAt time.Time    `json:"last_seen_at"`
}

func sessionKey(hash string) string { return "session:" + hash }

// expiredAt reports whether s is past its idle or absolute deadline.
func (s *Session) expiredAt(now time.Time, idle, absolute time.Duration) bool {
	return !now.Before(s.LastSeenAt.Add(idle)) || !now.Before(s.IssuedAt.Add(absolute))
}

// ttlAt is how long s may stay in the cache from now.
func (s *Session) ttlAt(now time.Time, idle, absolute time.Duration) time.Duration {
	ttl := idle
	if rest := s.IssuedAt.Add(absolute).Sub(now); rest < ttl {
		ttl = rest
	}
	return ttl
}

func (s *Service) putSession(ctx context.Context, hash string, sess *Session) error {
	ttl := sess.ttlAt(s.now(), s.cfg.SessionIdleTTL, s.cfg.SessionAbsoluteTTL)
	if ttl <= 0 {
		return s.cache.Delete(ctx, sessionKey(hash))
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return oops.With("operation", "marshal session").Wrap(err)
	}
	if err := s.cache.Put(ctx, sessionKey(hash), raw, ttl); err != nil {
		return oops.With("operation", "store session").With("session_id", sess.ID.String()).Wrap(err)
	}
	return nil
}

// refreshSession rewrites a live session with a new idle deadline. It
// reports false when the session is gone, so a concurrent logout is never
// undone.
func (s *Service) refreshSession(ctx context.Context, hash string, sess *Session) (bool, error) {
	ttl := sess.ttlAt(s.now(), s.cfg.SessionIdleTTL, s.cfg.SessionAbsoluteTTL)
	if ttl <= 0 {
		return false, s.cache.Delete(ctx, sessionKey(hash))
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return false, oops.With("operation", "marshal session").Wrap(err)
	}
	ok, err := s.cache.Refresh(ctx, sessionKey(hash), raw, ttl)
	if err != nil {
		return false, oops.With("operation", "refresh session").With("session_id", sess.ID.String()).Wrap(err)
	}
	return ok, nil
}

func (s *Service) getSession(ctx context.Context, hash string) (*Session, bool, error) {
	raw, ok, err := s.cache.Get(ctx, sessionKey(hash))
	if err != nil {
		return nil, false, oops.With("operation", "load session").Wrap(err)
	}
	if !ok {
		return nil, false, nil
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false, oops.With("operation", "decode session").Wrap(err)
	}
	return &sess, true, nil
}

// mintSession stores a new session for acct and returns it with its token.
func (s *Service) mintSession(ctx context.Context, accountID int64, role account.Role) (*Session, string, error) {
	token, hash, err := secret.NewToken()
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").With("operation", "generate session token").Wrap(err)
	}
	now := s.now()
	sess := &Session{
		ID:         ulid.Make(),
		AccountID:  accountID,
		Role:       role,
		IssuedAt:   now,
		LastSeenAt: now,
	}
	if err := s.putSession(ctx, hash, sess); err != nil {
		return nil, "", err
	}
	return sess, token, nil
}
