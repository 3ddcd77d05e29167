// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package account

import "context"

// Filter selects accounts. Nil fields do not constrain the query.
// Email matches case-insensitively.
type Filter struct {
	ID    *int64
	Email *string
	Name  *string
	Role  *Role
	State *State
	Limit int
}

// ByID returns a filter for one account ID.
func ByID(id int64) Filter { return Filter{ID: &id} }

// ByEmail returns a filter for one email address.
func ByEmail(email string) Filter { return Filter{Email: &email} }

// ByEmailAndRole returns a filter for an address under a role.
func ByEmailAndRole(email string, role Role) Filter {
	return Filter{Email: &email, Role: &role}
}

// NewAccount holds the fields of an account to insert.
type NewAccount struct {
	Name       string
	Email      string
	Credential string
	Role       Role
	State      State
}

// Repository persists accounts. Every method runs inside the unit of work
// carried by ctx, when there is one.
type Repository interface {
	// Find returns accounts matching f ordered by ID.
	Find(ctx context.Context, f Filter) ([]*Account, error)

	// Insert creates an account. A duplicate email fails with AlreadyExists.
	Insert(ctx context.Context, a NewAccount) (*Account, error)

	// Update writes name, email, credential and state. Role is immutable.
	Update(ctx context.Context, a *Account) error

	// Delete physically removes an account. Test cleanup only.
	Delete(ctx context.Context, id int64) error
}

// Transactor runs fn as one atomic unit of work.
//
// Business errors returned by fn propagate unchanged; any other failure is
// reported as a DatabaseError.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// FindOne returns the single account matching f, or NotFound.
func FindOne(ctx context.Context, repo Repository, f Filter) (*Account, error) {
	f.Limit = 1
	found, err := repo.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errNotFound(f)
	}
	return found[0], nil
}
