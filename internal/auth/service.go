// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package auth

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/internal/credential"
	"github.com/qread/qread/internal/notify"
	"github.com/qread/qread/internal/observability"
	"github.com/qread/qread/internal/secret"
	"github.com/qread/qread/pkg/errutil"
)

// Config holds sign-in and session lifetimes.
type Config struct {
	OTPTTL             time.Duration `koanf:"otp_ttl"`
	MaxOTPAttempts     int           `koanf:"max_otp_attempts"`
	SessionIdleTTL     time.Duration `koanf:"session_idle_ttl"`
	SessionAbsoluteTTL time.Duration `koanf:"session_absolute_ttl"`
}

// DefaultConfig returns a five minute passcode and a session that idles
// out after thirty minutes and ends after twelve hours.
func DefaultConfig() Config {
	return Config{
		OTPTTL:             5 * time.Minute,
		MaxOTPAttempts:     5,
		SessionIdleTTL:     30 * time.Minute,
		SessionAbsoluteTTL: 12 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OTPTTL <= 0 {
		c.OTPTTL = d.OTPTTL
	}
	if c.MaxOTPAttempts <= 0 {
		c.MaxOTPAttempts = d.MaxOTPAttempts
	}
	if c.SessionIdleTTL <= 0 {
		c.SessionIdleTTL = d.SessionIdleTTL
	}
	if c.SessionAbsoluteTTL <= 0 {
		c.SessionAbsoluteTTL = d.SessionAbsoluteTTL
	}
	return c
}

// Deps are the collaborators of Service. Logger, Metrics and Clock are
// optional.
type Deps struct {
	Accounts account.Repository
	Tx       account.Transactor
	Hasher   credential.Hasher
	Cache    secret.Cache
	Notifier notify.Gateway
	Logger   *slog.Logger
	Metrics  *observability.AuthMetrics
	Clock    func() time.Time
}

// Service signs accounts in and validates their sessions.
type Service struct {
	cfg      Config
	accounts account.Repository
	tx       account.Transactor
	hasher   credential.Hasher
	cache    secret.Cache
	notifier notify.Gateway
	logger   *slog.Logger
	metrics  *observability.AuthMetrics
	now      func() time.Time

	// dummyCredential is verified when no account matches so that unknown
	// emails cost the same as wrong passwords.
	dummyCredential string
}

// NewService creates a Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Errorf("account repository is required")
	case deps.Tx == nil:
		return nil, oops.Errorf("transactor is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("credential hasher is required")
	case deps.Cache == nil:
		return nil, oops.Errorf("secret cache is required")
	case deps.Notifier == nil:
		return nil, oops.Errorf("notification gateway is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	dummy, err := deps.Hasher.Hash("qread-no-such-account")
	if err != nil {
		return nil, oops.With("operation", "prepare dummy credential").Wrap(err)
	}

	return &Service{
		cfg:             cfg.withDefaults(),
		accounts:        deps.Accounts,
		tx:              deps.Tx,
		hasher:          deps.Hasher,
		cache:           deps.Cache,
		notifier:        deps.Notifier,
		logger:          deps.Logger,
		metrics:         deps.Metrics,
		now:             deps.Clock,
		dummyCredential: dummy,
	}, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Authenticate checks email and password against the account holding role
// and mails a passcode. Unknown emails and wrong passwords fail alike
// with InvalidCredentials; account state is checked only after the
// password matched.
func (s *Service) Authenticate(ctx context.Context, email, password string, role account.Role) (*PendingAuthentication, error) {
	email = account.NormalizeEmail(email)
	if err := account.ValidateEmail(email); err != nil {
		s.metrics.LoginAttempt(observability.OutcomeInvalid)
		return nil, err
	}
	if err := account.ValidatePassword(password); err != nil {
		s.metrics.LoginAttempt(observability.OutcomeInvalid)
		return nil, err
	}

	var found *account.Account
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		a, err := account.FindOne(ctx, s.accounts, account.ByEmailAndRole(email, role))
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		found = a
		return err
	})
	if err != nil {
		s.recordLoginFailure(ctx, err)
		return nil, err
	}

	acct, err := s.checkPassword(found, password)
	if err != nil {
		s.recordLoginFailure(ctx, err)
		return nil, err
	}

	if s.hasher.NeedsRehash(acct.Credential) {
		s.upgradeCredential(ctx, acct, password)
	}

	otp, err := newIssuedOTP()
	if err != nil {
		s.recordLoginFailure(ctx, err)
		return nil, err
	}
	if err := s.cache.Put(ctx, otpKey(acct.ID), otp.encode(), s.cfg.OTPTTL); err != nil {
		err = oops.With("operation", "store passcode").With("account_id", acct.ID).Wrap(err)
		s.recordLoginFailure(ctx, err)
		return nil, err
	}
	s.notifier.SendOTP(ctx, acct.Email, otp.code)

	s.metrics.LoginAttempt(observability.OutcomeSuccess)
	s.logger.InfoContext(ctx, "password accepted, passcode sent", "account_id", acct.ID, "role", acct.Role)
	return &PendingAuthentication{AccountID: acct.ID, Role: acct.Role, CreatedAt: s.now()}, nil
}

// checkPassword verifies password against a, or against the dummy
// credential when a is nil. It runs outside any unit of work.
func (s *Service) checkPassword(a *account.Account, password string) (*account.Account, error) {
	if a == nil {
		_, _ = s.hasher.Verify(password, s.dummyCredential) //nolint:errcheck // timing only
		return nil, errInvalidCredentials()
	}
	ok, err := s.hasher.Verify(password, a.Credential)
	if err != nil {
		return nil, oops.With("account_id", a.ID).Wrap(err)
	}
	if !ok {
		return nil, errInvalidCredentials()
	}
	if err := a.LoginError(); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidCredentials:
		s.metrics.LoginAttempt(observability.OutcomeInvalidCredentials)
	case apperr.KindAccountState:
		s.metrics.LoginAttempt(observability.OutcomeAccountState)
	case apperr.KindDatabase:
		s.metrics.LoginAttempt(observability.OutcomeError)
		errutil.LogError(ctx, s.logger, "login failed", err)
	default:
		s.metrics.LoginAttempt(observability.OutcomeInvalid)
	}
}

// upgradeCredential rehashes password under the current policy. Failure
// is logged and otherwise ignored.
func (s *Service) upgradeCredential(ctx context.Context, acct *account.Account, password string) {
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		upgraded, err := s.hasher.Hash(password)
		if err != nil {
			return err
		}
		a, err := account.FindOne(ctx, s.accounts, account.ByID(acct.ID))
		if err != nil {
			return err
		}
		a.Credential = upgraded
		return s.accounts.Update(ctx, a)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "credential upgrade failed", append([]any{"account_id", acct.ID}, errutil.Attrs(err)...)...)
		return
	}
	s.logger.DebugContext(ctx, "credential upgraded", "account_id", acct.ID)
}

// VerifyOTP checks code against the passcode of the pending sign-in behind
// pendingToken and, on a match, mints a session. Every guess is counted
// against the issued passcode before it is compared; a wrong code leaves
// the passcode in place until the attempt limit is reached. After a match
// the pending record is kept as verified until its TTL, so replaying the
// code fails with InvalidOTP.
func (s *Service) VerifyOTP(ctx context.Context, pendingToken, code string) (*Session, string, error) {
	pending, err := s.LookupPending(ctx, pendingToken)
	if err != nil {
		s.metrics.OTPVerification(observability.OutcomeInvalid)
		return nil, "", err
	}
	if code == "" {
		s.metrics.OTPVerification(observability.OutcomeInvalid)
		return nil, "", apperr.New(apperr.KindValidation, "one-time passcode is required")
	}
	if pending.Verified {
		s.metrics.OTPVerification(observability.OutcomeInvalid)
		return nil, "", errInvalidOTP()
	}
	pendingHash := secret.HashToken(pendingToken)

	key := otpKey(pending.AccountID)
	stored, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.OTPVerification(observability.OutcomeError)
		return nil, "", oops.With("operation", "load passcode").Wrap(err)
	}
	if !ok {
		s.metrics.OTPVerification(observability.OutcomeInvalid)
		return nil, "", errInvalidOTP()
	}
	issued, err := decodeOTP(stored)
	if err != nil {
		s.metrics.OTPVerification(observability.OutcomeError)
		return nil, "", err
	}

	attempts, err := s.cache.Incr(ctx, otpAttemptsKey(issued.nonce), s.cfg.OTPTTL)
	if err != nil {
		s.metrics.OTPVerification(observability.OutcomeError)
		return nil, "", oops.With("operation", "count passcode attempt").Wrap(err)
	}
	limit := int64(s.cfg.MaxOTPAttempts)
	if attempts > limit {
		s.metrics.OTPVerification(observability.OutcomeInvalid)
		s.exhaustOTP(ctx, pendingHash, pending.AccountID, stored)
		return nil, "", errInvalidOTP()
	}
	if !otpEqual([]byte(issued.code), code) {
		s.metrics.OTPVerification(observability.OutcomeInvalid)
		if attempts == limit {
			s.exhaustOTP(ctx, pendingHash, pending.AccountID, stored)
			s.logger.WarnContext(ctx, "passcode attempts exhausted", "account_id", pending.AccountID)
		}
		return nil, "", errInvalidOTP()
	}

	taken, ok, err := s.cache.Take(ctx, key)
	if err != nil {
		s.metrics.OTPVerification(observability.OutcomeError)
		return nil, "", oops.With("operation", "consume passcode").Wrap(err)
	}
	if !ok || !bytes.Equal(taken, stored) {
		if ok {
			// A newer passcode was issued after the compare; put it back.
			_ = s.cache.Put(ctx, key, taken, s.cfg.OTPTTL) //nolint:errcheck // best effort
		}
		s.metrics.OTPVerification(observability.OutcomeInvalid)
		return nil, "", errInvalidOTP()
	}
	if err := s.markVerified(ctx, pendingHash, pending); err != nil {
		s.metrics.OTPVerification(observability.OutcomeError)
		return nil, "", err
	}

	sess, token, err := s.mintSession(ctx, pending.AccountID, pending.Role)
	if err != nil {
		s.metrics.OTPVerification(observability.OutcomeError)
		return nil, "", err
	}
	s.metrics.OTPVerification(observability.OutcomeSuccess)
	s.logger.InfoContext(ctx, "session established", "account_id", sess.AccountID, "session_id", sess.ID.String())
	return sess, token, nil
}

// exhaustOTP drops the pending sign-in and, unless a newer one was issued
// meanwhile, the passcode. The client must log in again.
func (s *Service) exhaustOTP(ctx context.Context, pendingHash string, accountID int64, stored []byte) {
	_ = s.cache.Delete(ctx, pendingKey(pendingHash)) //nolint:errcheck // best effort
	current, ok, err := s.cache.Get(ctx, otpKey(accountID))
	if err == nil && ok && bytes.Equal(current, stored) {
		_ = s.cache.Delete(ctx, otpKey(accountID)) //nolint:errcheck // best effort
	}
}

// Logout destroys the session behind token. Unknown or empty tokens are
// not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.cache.Delete(ctx, sessionKey(secret.HashToken(token))); err != nil {
		return oops.With("operation", "delete session").Wrap(err)
	}
	return nil
}

// CheckSessionValid reports whether token names a live session whose
// account still exists, still holds the session's role and is active.
// Valid sessions have their idle deadline extended; invalid ones are
// deleted. Repository and cache faults are returned as errors.
func (s *Service) CheckSessionValid(ctx context.Context, token string) (*Session, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	hash := secret.HashToken(token)

	sess, ok, err := s.getSession(ctx, hash)
	if err != nil || !ok {
		return nil, false, err
	}

	now := s.now()
	if sess.expiredAt(now, s.cfg.SessionIdleTTL, s.cfg.SessionAbsoluteTTL) {
		return nil, false, s.dropSession(ctx, hash)
	}

	acct, err := account.FindOne(ctx, s.accounts, account.ByID(sess.AccountID))
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		return nil, false, s.dropSession(ctx, hash)
	case err != nil:
		return nil, false, apperr.Database(err)
	}
	if acct.Role != sess.Role || acct.State != account.StateActive {
		s.logger.InfoContext(ctx, "session revoked", "account_id", acct.ID, "state", acct.State)
		return nil, false, s.dropSession(ctx, hash)
	}

	sess.LastSeenAt = now
	live, err := s.refreshSession(ctx, hash, sess)
	if err != nil || !live {
		return nil, false, err
	}
	return sess, true, nil
}

func (s *Service) dropSession(ctx context.Context, hash string) error {
	if err := s.cache.Delete(ctx, sessionKey(hash)); err != nil {
		return oops.With("operation", "delete session").Wrap(err)
	}
	return nil
}
