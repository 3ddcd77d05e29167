// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    account.Role
		wantErr bool
	}{
		{"admin", account.RoleAdmin, false},
		{"Librarian", account.RoleLibrarian, false},
		{" BORROWER ", account.RoleBorrower, false},
		{"janitor", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := account.ParseRole(tt.in)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseState(t *testing.T) {
	s, err := account.ParseState("suspended")
	require.NoError(t, err)
	assert.Equal(t, account.StateSuspended, s)

	_, err = account.ParseState("frozen")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestTransitionTo(t *testing.T) {
	tests := []struct {
		from, to account.State
		ok       bool
	}{
		{account.StateActive, account.StateSuspended, true},
		{account.StateSuspended, account.StateActive, true},
		{account.StateActive, account.StateDeleted, true},
		{account.StateSuspended, account.StateDeleted, false},
		{account.StateDeleted, account.StateActive, false},
		{account.StateDeleted, account.StateSuspended, false},
		{account.StateActive, account.StateActive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			a := &account.Account{ID: 1, State: tt.from}
			err := a.TransitionTo(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, a.State)
				return
			}
			assert.True(t, apperr.Is(err, apperr.KindAccountState))
			assert.Equal(t, tt.from, a.State)
		})
	}
}

func TestLoginError(t *testing.T) {
	assert.NoError(t, (&account.Account{State: account.StateActive}).LoginError())
	assert.True(t, apperr.Is((&account.Account{State: account.StateSuspended}).LoginError(), apperr.KindAccountState))
	assert.True(t, apperr.Is((&account.Account{State: account.StateDeleted}).LoginError(), apperr.KindAccountState))
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"alice@x.com", "a.b@library.example.org"}
	for _, e := range valid {
		assert.NoError(t, account.ValidateEmail(e), e)
	}
	invalid := []string{"", "alice", "alice@x", "@x.com", "alice@.c"}
	for _, e := range invalid {
		err := account.ValidateEmail(e)
		assert.True(t, apperr.Is(err, apperr.KindValidation), e)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@x.com", account.NormalizeEmail("  Alice@X.com "))
}
