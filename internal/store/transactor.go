// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/qread/qread/internal/apperr"
)

// Transactor runs units of work against PostgreSQL. The active pgx.Tx is
// carried in the context so repositories called from fn join it.
type Transactor struct {
	db     DB
	logger *slog.Logger
}

// NewTransactor creates a Transactor over db.
func NewTransactor(db DB, logger *slog.Logger) *Transactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transactor{db: db, logger: logger}
}

// InTransaction begins a transaction, calls fn and commits when fn returns
// nil. Otherwise the transaction is rolled back. Business errors from fn
// are returned unchanged; storage faults come back as DatabaseError.
// A call made while ctx already carries a transaction joins it.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return apperr.Database(err)
	}

	defer func() {
		p := recover()
		if err != nil || p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				t.logger.WarnContext(ctx, "transaction rollback failed", "error", rbErr)
			}
		}
		if p != nil {
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if apperr.IsBusiness(err) {
			return err
		}
		return apperr.Database(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return apperr.Database(err)
	}
	return nil
}
