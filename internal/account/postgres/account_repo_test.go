// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/internal/store"
)

var columns = []string{"id", "name", "email", "credential", "role", "state", "created_at", "updated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock
}

func TestBuildFind(t *testing.T) {
	id := int64(4)
	email := "alice@x.com"
	role := account.RoleBorrower
	state := account.StateActive

	tests := []struct {
		name      string
		filter    account.Filter
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "no filter",
			filter:    account.Filter{},
			wantQuery: "SELECT " + accountColumns + " FROM accounts ORDER BY id",
		},
		{
			name:      "id with limit",
			filter:    account.Filter{ID: &id, Limit: 1},
			wantQuery: "SELECT " + accountColumns + " FROM accounts WHERE id = $1 ORDER BY id LIMIT $2",
			wantArgs:  []any{id, 1},
		},
		{
			name:      "email role and state",
			filter:    account.Filter{Email: &email, Role: &role, State: &state},
			wantQuery: "SELECT " + accountColumns + " FROM accounts WHERE LOWER(email) = LOWER($1) AND role = $2 AND state = $3 ORDER BY id",
			wantArgs:  []any{email, "BORROWER", "ACTIVE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildFind(tt.filter)
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestAccountRepository_Find(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("scans matching rows", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT .* FROM accounts WHERE LOWER\(email\) = LOWER\(\$1\) AND role = \$2 ORDER BY id`).
			WithArgs("alice@x.com", "BORROWER").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(int64(1), "alice", "alice@x.com", "cred", "BORROWER", "ACTIVE", now, now))

		found, err := NewAccountRepository(mock).Find(ctx, account.ByEmailAndRole("alice@x.com", account.RoleBorrower))
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, int64(1), found[0].ID)
		assert.Equal(t, account.RoleBorrower, found[0].Role)
		assert.Equal(t, account.StateActive, found[0].State)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure is an infrastructure error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT .* FROM accounts`).WillReturnError(errors.New("connection refused"))

		_, err := NewAccountRepository(mock).Find(ctx, account.Filter{})
		require.Error(t, err)
		assert.False(t, apperr.IsBusiness(err))
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAccountRepository_Insert(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	na := account.NewAccount{
		Name: "alice", Email: "alice@x.com", Credential: "cred",
		Role: account.RoleBorrower, State: account.StateActive,
	}

	t.Run("returns the stored account", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO accounts`).
			WithArgs("alice", "alice@x.com", "cred", "BORROWER", "ACTIVE").
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(12), now, now))

		a, err := NewAccountRepository(mock).Insert(ctx, na)
		require.NoError(t, err)
		assert.Equal(t, int64(12), a.ID)
		assert.Equal(t, "alice@x.com", a.Email)
		assert.Equal(t, now, a.CreatedAt)
	})

	t.Run("unique violation is AlreadyExists", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO accounts`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_email_key"})

		_, err := NewAccountRepository(mock).Insert(ctx, na)
		assert.True(t, apperr.Is(err, apperr.KindAlreadyExists))
	})

	t.Run("other failures are infrastructure errors", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO accounts`).WillReturnError(errors.New("disk full"))

		_, err := NewAccountRepository(mock).Insert(ctx, na)
		require.Error(t, err)
		assert.False(t, apperr.IsBusiness(err))
	})
}

func TestAccountRepository_Update(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("writes mutable fields and keeps stored role", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE accounts SET`).
			WithArgs(int64(3), "alice", "alice@x.com", "newcred", "SUSPENDED").
			WillReturnRows(pgxmock.NewRows([]string{"role", "updated_at"}).AddRow("BORROWER", now))

		a := &account.Account{ID: 3, Name: "alice", Email: "alice@x.com", Credential: "newcred",
			Role: account.RoleAdmin, State: account.StateSuspended}
		require.NoError(t, NewAccountRepository(mock).Update(ctx, a))
		assert.Equal(t, account.RoleBorrower, a.Role)
		assert.Equal(t, now, a.UpdatedAt)
	})

	t.Run("missing row is NotFound", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE accounts SET`).
			WillReturnRows(pgxmock.NewRows([]string{"role", "updated_at"}))

		err := NewAccountRepository(mock).Update(ctx, &account.Account{ID: 99})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("email collision is AlreadyExists", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE accounts SET`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := NewAccountRepository(mock).Update(ctx, &account.Account{ID: 3, Email: "bob@x.com"})
		assert.True(t, apperr.Is(err, apperr.KindAlreadyExists))
	})
}

func TestAccountRepository_Delete(t *testing.T) {
	ctx := context.Background()

	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM accounts WHERE id = \$1`).WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM accounts WHERE id = \$1`).WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewAccountRepository(mock)
	require.NoError(t, repo.Delete(ctx, 5))
	assert.True(t, apperr.Is(repo.Delete(ctx, 5), apperr.KindNotFound))
}

func TestAccountRepository_JoinsTransaction(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO accounts`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))
	mock.ExpectRollback()

	repo := NewAccountRepository(mock)
	err := store.NewTransactor(mock, nil).InTransaction(ctx, func(ctx context.Context) error {
		if _, err := repo.Insert(ctx, account.NewAccount{Name: "a", Email: "a@x.com", Credential: "c",
			Role: account.RoleBorrower, State: account.StateActive}); err != nil {
			return err
		}
		return apperr.New(apperr.KindValidation, "abort after insert")
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}
