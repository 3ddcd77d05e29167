// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package admin implements account administration: listing accounts and
// moving them between lifecycle states.
package admin

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
)

// Service administers accounts on behalf of an admin.
type Service struct {
	accounts account.Repository
	tx       account.Transactor
	logger   *slog.Logger
}

// NewService creates a Service. A nil logger uses slog.Default.
func NewService(accounts account.Repository, tx account.Transactor, logger *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accounts, tx: tx, logger: logger}, nil
}

// ListAccounts returns the accounts matching f.
func (s *Service) ListAccounts(ctx context.Context, f account.Filter) ([]*account.Account, error) {
	var out []*account.Account
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		found, err := s.accounts.Find(ctx, f)
		out = found
		return err
	})
	return out, err
}

// Suspend blocks sign-in for an active account.
func (s *Service) Suspend(ctx context.Context, actorID, id int64) (*account.Account, error) {
	return s.transition(ctx, actorID, id, account.StateSuspended)
}

// Reinstate reactivates a suspended account.
func (s *Service) Reinstate(ctx context.Context, actorID, id int64) (*account.Account, error) {
	return s.transition(ctx, actorID, id, account.StateActive)
}

// Delete marks an active account deleted. Deletion is terminal and the row
// is kept.
func (s *Service) Delete(ctx context.Context, actorID, id int64) (*account.Account, error) {
	return s.transition(ctx, actorID, id, account.StateDeleted)
}

func (s *Service) transition(ctx context.Context, actorID, id int64, to account.State) (*account.Account, error) {
	if actorID == id {
		return nil, apperr.NewWith(apperr.KindValidation, []any{"account_id", id}, "admins cannot change their own account state")
	}

	var updated *account.Account
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		a, err := account.FindOne(ctx, s.accounts, account.ByID(id))
		if err != nil {
			return err
		}
		if err := a.TransitionTo(to); err != nil {
			return err
		}
		if err := s.accounts.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account state changed", "actor_id", actorID, "account_id", id, "state", to)
	return updated, nil
}
