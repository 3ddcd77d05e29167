// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package provision creates accounts and replaces their credentials:
// borrower self-registration, librarian invitations, password resets and
// password changes.
package provision

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/internal/credential"
	"github.com/qread/qread/internal/notify"
	"github.com/qread/qread/internal/secret"
	"github.com/qread/qread/pkg/errutil"
)

// Config holds action secret lifetimes.
type Config struct {
	ResetTTL  time.Duration `koanf:"reset_ttl"`
	InviteTTL time.Duration `koanf:"invite_ttl"`
}

// DefaultConfig returns a thirty minute reset link and a three day invite.
func DefaultConfig() Config {
	return Config{ResetTTL: 30 * time.Minute, InviteTTL: 72 * time.Hour}
}

// Deps are the collaborators of Service. Logger is optional.
type Deps struct {
	Accounts account.Repository
	Tx       account.Transactor
	Hasher   credential.Hasher
	Actions  *secret.Actions
	Notifier notify.Gateway
	Logger   *slog.Logger
}

// Service provisions accounts.
type Service struct {
	cfg      Config
	accounts account.Repository
	tx       account.Transactor
	hasher   credential.Hasher
	actions  *secret.Actions
	notifier notify.Gateway
	logger   *slog.Logger
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
	case deps.Actions == nil:
		return nil, oops.Errorf("action secret store is required")
	case deps.Notifier == nil:
		return nil, oops.Errorf("notification gateway is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = d.ResetTTL
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = d.InviteTTL
	}
	return &Service{
		cfg:      cfg,
		accounts: deps.Accounts,
		tx:       deps.Tx,
		hasher:   deps.Hasher,
		actions:  deps.Actions,
		notifier: deps.Notifier,
		logger:   deps.Logger,
	}, nil
}

// RegisterBorrower creates an active borrower account.
func (s *Service) RegisterBorrower(ctx context.Context, name, email, password string) (*account.Account, error) {
	return s.CreateAccount(ctx, name, email, password, account.RoleBorrower)
}

// CreateAccount creates an active account with the given role. The email
// must not belong to any account, whatever its role or state.
func (s *Service) CreateAccount(ctx context.Context, name, email, password string, role account.Role) (*account.Account, error) {
	email = account.NormalizeEmail(email)
	if err := validateNew(name, email, password); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.NewWith(apperr.KindValidation, []any{"role", role}, "unknown role %q", role)
	}

	cred, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	var created *account.Account
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.ensureEmailFree(ctx, email); err != nil {
			return err
		}
		created, err = s.accounts.Insert(ctx, account.NewAccount{
			Name:       name,
			Email:      email,
			Credential: cred,
			Role:       role,
			State:      account.StateActive,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account created", "account_id", created.ID, "role", role)
	return created, nil
}

// InviteLibrarian mails a librarian invitation to email. redirect is the
// page that will receive the secret.
func (s *Service) InviteLibrarian(ctx context.Context, email, redirect string) error {
	email = account.NormalizeEmail(email)
	if err := account.ValidateEmail(email); err != nil {
		return err
	}

	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		return s.ensureEmailFree(ctx, email)
	})
	if err != nil {
		return err
	}

	token, err := s.actions.Issue(ctx, secret.Action{Purpose: secret.PurposeLibrarianInvite, Email: email}, s.cfg.InviteTTL)
	if err != nil {
		return err
	}
	s.notifier.SendInvite(ctx, email, token, redirect)
	s.logger.InfoContext(ctx, "librarian invited", "email", email)
	return nil
}

// RedeemLibrarianInvite creates the librarian account named by an
// invitation secret. The secret is consumed unless the failure was an
// infrastructure fault.
func (s *Service) RedeemLibrarianInvite(ctx context.Context, token, name, password string) (*account.Account, error) {
	if err := account.ValidateName(name); err != nil {
		return nil, err
	}
	if err := account.ValidatePassword(password); err != nil {
		return nil, err
	}

	invite, err := s.actions.Redeem(ctx, token, secret.PurposeLibrarianInvite)
	if err != nil {
		return nil, err
	}

	cred, err := s.hasher.Hash(password)
	if err != nil {
		s.restore(ctx, token, invite)
		return nil, err
	}

	var created *account.Account
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.ensureEmailFree(ctx, invite.Email); err != nil {
			return err
		}
		created, err = s.accounts.Insert(ctx, account.NewAccount{
			Name:       name,
			Email:      invite.Email,
			Credential: cred,
			Role:       account.RoleLibrarian,
			State:      account.StateActive,
		})
		return err
	})
	if err != nil {
		if !apperr.IsBusiness(err) {
			s.restore(ctx, token, invite)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "librarian account created", "account_id", created.ID)
	return created, nil
}

// ForgotPassword mails a reset secret for the account holding email.
// Missing and deleted accounts fail with NotFound.
func (s *Service) ForgotPassword(ctx context.Context, email, redirect string) error {
	email = account.NormalizeEmail(email)
	if err := account.ValidateEmail(email); err != nil {
		return err
	}

	var acct *account.Account
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		a, err := account.FindOne(ctx, s.accounts, account.ByEmail(email))
		if err != nil {
			return err
		}
		if a.State == account.StateDeleted {
			return apperr.NewWith(apperr.KindNotFound, []any{"email", email}, "account not found")
		}
		acct = a
		return nil
	})
	if err != nil {
		return err
	}

	token, err := s.actions.Issue(ctx, secret.Action{Purpose: secret.PurposePasswordReset, AccountID: acct.ID}, s.cfg.ResetTTL)
	if err != nil {
		return err
	}
	s.notifier.SendPasswordReset(ctx, acct.Email, token, redirect)
	s.logger.InfoContext(ctx, "password reset issued", "account_id", acct.ID)
	return nil
}

// ResetPassword replaces the credential of the account behind a reset
// secret. It does not sign the account in.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := account.ValidatePassword(newPassword); err != nil {
		return err
	}

	reset, err := s.actions.Redeem(ctx, token, secret.PurposePasswordReset)
	if err != nil {
		return err
	}

	cred, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.restore(ctx, token, reset)
		return err
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		a, err := account.FindOne(ctx, s.accounts, account.ByID(reset.AccountID))
		if err != nil {
			return err
		}
		if a.State == account.StateDeleted {
			return apperr.NewWith(apperr.KindNotFound, []any{"account_id", a.ID}, "account not found")
		}
		a.Credential = cred
		return s.accounts.Update(ctx, a)
	})
	if err != nil {
		if !apperr.IsBusiness(err) {
			s.restore(ctx, token, reset)
		}
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "account_id", reset.AccountID)
	return nil
}

// ChangePassword replaces the credential of accountID after checking the
// current password.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error {
	if err := account.ValidatePassword(oldPassword); err != nil {
		return err
	}
	if err := account.ValidatePassword(newPassword); err != nil {
		return err
	}

	cred, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	var current *account.Account
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		current, err = account.FindOne(ctx, s.accounts, account.ByID(accountID))
		return err
	})
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(oldPassword, current.Credential)
	if err != nil {
		return oops.With("account_id", current.ID).Wrap(err)
	}
	if !ok {
		return errWrongPassword()
	}

	return s.tx.InTransaction(ctx, func(ctx context.Context) error {
		a, err := account.FindOne(ctx, s.accounts, account.ByID(accountID))
		if err != nil {
			return err
		}
		// The credential was replaced after it was checked.
		if a.Credential != current.Credential {
			return errWrongPassword()
		}
		a.Credential = cred
		return s.accounts.Update(ctx, a)
	})
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	found, err := s.accounts.Find(ctx, account.Filter{Email: &email, Limit: 1})
	if err != nil {
		return err
	}
	if len(found) > 0 {
		return account.ErrAlreadyExists(email)
	}
	return nil
}

// restore puts a redeemed secret back after an infrastructure fault.
func (s *Service) restore(ctx context.Context, token string, a *secret.Action) {
	if err := s.actions.Restore(ctx, token, a); err != nil {
		errutil.LogError(ctx, s.logger, "restore action secret", err)
	}
}

func errWrongPassword() error {
	return apperr.New(apperr.KindInvalidCredentials, "current password is incorrect")
}

func validateNew(name, email, password string) error {
	if err := account.ValidateName(name); err != nil {
		return err
	}
	if err := account.ValidateEmail(email); err != nil {
		return err
	}
	return account.ValidatePassword(password)
}
