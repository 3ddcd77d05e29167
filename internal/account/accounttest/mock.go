// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package accounttest provides test doubles for the account package.
package accounttest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
)

// MockRepository is a testify mock of account.Repository.
type MockRepository struct {
	mock.Mock
}

// NewMockRepository creates a MockRepository whose expectations are
// asserted when the test ends.
func NewMockRepository(t *testing.T) *MockRepository {
	m := &MockRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Find implements account.Repository.
func (m *MockRepository) Find(ctx context.Context, f account.Filter) ([]*account.Account, error) {
	args := m.Called(ctx, f)
	found, _ := args.Get(0).([]*account.Account)
	return found, args.Error(1)
}

// Insert implements account.Repository.
func (m *MockRepository) Insert(ctx context.Context, a account.NewAccount) (*account.Account, error) {
	args := m.Called(ctx, a)
	created, _ := args.Get(0).(*account.Account)
	return created, args.Error(1)
}

// Update implements account.Repository.
func (m *MockRepository) Update(ctx context.Context, a *account.Account) error {
	return m.Called(ctx, a).Error(0)
}

// Delete implements account.Repository.
func (m *MockRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// PassthroughTransactor runs fn directly and applies the boundary's error
// mapping. It pairs with MockRepository.
type PassthroughTransactor struct{}

// InTransaction implements account.Transactor.
func (PassthroughTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || apperr.IsBusiness(err) {
		return err
	}
	return apperr.Database(err)
}
