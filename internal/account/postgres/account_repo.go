// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package postgres implements account.Repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/internal/store"
)

const accountColumns = `id, name, email, credential, role, state, created_at, updated_at`

// AccountRepository implements account.Repository. Every call runs on the
// transaction carried by ctx when there is one.
type AccountRepository struct {
	db store.Querier
}

// NewAccountRepository creates an AccountRepository over db.
func NewAccountRepository(db store.Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Find returns accounts matching f ordered by id.
func (r *AccountRepository) Find(ctx context.Context, f account.Filter) ([]*account.Account, error) {
	query, args := buildFind(f)

	rows, err := store.Conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").With("operation", "query accounts").Wrap(err)
	}
	defer rows.Close()

	var out []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_FIND_FAILED").With("operation", "scan account").Wrap(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return out, nil
}

// buildFind compiles a filter into SQL with positional arguments.
func buildFind(f account.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.ID != nil {
		add("id = ?", *f.ID)
	}
	if f.Email != nil {
		add("LOWER(email) = LOWER(?)", *f.Email)
	}
	if f.Name != nil {
		add("name = ?", *f.Name)
	}
	if f.Role != nil {
		add("role = ?", string(*f.Role))
	}
	if f.State != nil {
		add("state = ?", string(*f.State))
	}

	var b strings.Builder
	b.WriteString("SELECT " + accountColumns + " FROM accounts")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

// Insert creates an account. The unique index on LOWER(email) turns a
// concurrent duplicate into AlreadyExists.
func (r *AccountRepository) Insert(ctx context.Context, na account.NewAccount) (*account.Account, error) {
	a := &account.Account{
		Name:       na.Name,
		Email:      na.Email,
		Credential: na.Credential,
		Role:       na.Role,
		State:      na.State,
	}
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO accounts (name, email, credential, role, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, na.Name, na.Email, na.Credential, string(na.Role), string(na.State)).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, account.ErrAlreadyExists(na.Email)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_INSERT_FAILED").
			With("operation", "insert account").
			With("email", na.Email).
			Wrap(err)
	}
	return a, nil
}

// Update writes name, email, credential and state. The stored role is read
// back into a so callers never observe a changed role.
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	var role string
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		UPDATE accounts SET
			name = $2,
			email = $3,
			credential = $4,
			state = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING role, updated_at
	`, a.ID, a.Name, a.Email, a.Credential, string(a.State)).
		Scan(&role, &a.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperr.NewWith(apperr.KindNotFound, []any{"account_id", a.ID}, "account not found")
	case isUniqueViolation(err):
		return account.ErrAlreadyExists(a.Email)
	case err != nil:
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("account_id", a.ID).
			Wrap(err)
	}
	a.Role = account.Role(role)
	return nil
}

// Delete physically removes an account. Production code soft-deletes by
// state; this exists for test cleanup.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := store.Conn(ctx, r.db).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("account_id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NewWith(apperr.KindNotFound, []any{"account_id", id}, "account not found")
	}
	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a           account.Account
		role, state string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Credential, &role, &state, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = account.Role(role)
	a.State = account.State(state)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ account.Repository = (*AccountRepository)(nil)
