// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package account defines library accounts and the repository contract
// that persists them.
package account

import (
	"regexp"
	"strings"
	"time"

	"github.com/qread/qread/internal/apperr"
)

// Role is the fixed role of an account.
type Role string

// Roles.
const (
	RoleAdmin     Role = "ADMIN"
	RoleLibrarian Role = "LIBRARIAN"
	RoleBorrower  Role = "BORROWER"
)

// Roles lists every role.
var Roles = []Role{RoleAdmin, RoleLibrarian, RoleBorrower}

// ParseRole parses a role name case-insensitively ("admin", "LIBRARIAN").
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r.Valid() {
		return r, nil
	}
	return "", apperr.NewWith(apperr.KindValidation, []any{"role", s}, "unknown role %q", s)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleBorrower:
		return true
	}
	return false
}

// State is the lifecycle state of an account.
type State string

// States.
const (
	StateActive    State = "ACTIVE"
	StateSuspended State = "SUSPENDED"
	StateDeleted   State = "DELETED"
)

// ParseState parses a state name case-insensitively.
func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StateActive, StateSuspended, StateDeleted:
		return st, nil
	}
	return "", apperr.NewWith(apperr.KindValidation, []any{"state", s}, "unknown state %q", s)
}

// Account is a persisted library user.
type Account struct {
	ID         int64
	Name       string
	Email      string
	Credential string
	Role       Role
	State      State
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CanTransition reports whether from→to is an allowed lifecycle move.
// Deleted is terminal.
func CanTransition(from, to State) bool {
	switch from {
	case StateActive:
		return to == StateSuspended || to == StateDeleted
	case StateSuspended:
		return to == StateActive
	}
	return false
}

// TransitionTo moves the account to state to.
func (a *Account) TransitionTo(to State) error {
	if !CanTransition(a.State, to) {
		return apperr.NewWith(apperr.KindAccountState,
			[]any{"account_id", a.ID, "from", a.State, "to", to},
			"account cannot move from %s to %s", strings.ToLower(string(a.State)), strings.ToLower(string(to)))
	}
	a.State = to
	return nil
}

// LoginError returns the error for an account whose state forbids login,
// or nil when the account is active.
func (a *Account) LoginError() error {
	switch a.State {
	case StateActive:
		return nil
	case StateSuspended:
		return apperr.NewWith(apperr.KindAccountState, []any{"account_id", a.ID}, "account is suspended")
	default:
		return apperr.NewWith(apperr.KindAccountState, []any{"account_id", a.ID}, "account is deleted")
	}
}

// Summary is the public view of an account.
type Summary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	State State  `json:"state"`
}

// Summary returns the public view of a.
func (a *Account) Summary() Summary {
	return Summary{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role, State: a.State}
}

var emailPattern = regexp.MustCompile(`^.+@.+[.].+$`)

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address shape.
func ValidateEmail(email string) error {
	if email == "" {
		return apperr.New(apperr.KindValidation, "email is required")
	}
	if !emailPattern.MatchString(email) {
		return apperr.NewWith(apperr.KindValidation, []any{"email", email}, "email is malformed")
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.New(apperr.KindValidation, "name is required")
	}
	return nil
}

// ValidatePassword checks that a password was supplied.
func ValidatePassword(password string) error {
	if password == "" {
		return apperr.New(apperr.KindValidation, "password is required")
	}
	return nil
}
