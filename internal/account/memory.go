// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package account

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/qread/qread/internal/apperr"
)

type memoryTxKey struct{}

// MemoryStore is an in-process Repository and Transactor. Units of work
// run one at a time and are rolled back by restoring a snapshot.
// It backs the dev server and the service tests.
type MemoryStore struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	nextID int64
	rows   map[int64]Account
	now    func() time.Time

	// Fault, when set, is consulted before every repository call; a non-nil
	// result is returned as if the storage layer had failed.
	Fault func(op string) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		rows:   make(map[int64]Account),
		now:    time.Now,
	}
}

// InTransaction runs fn with all-or-nothing semantics. Nested calls join
// the outer unit of work.
func (s *MemoryStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inMemoryTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot, nextID := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot, nextID)
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		s.restore(snapshot, nextID)
		if apperr.IsBusiness(err) {
			return err
		}
		return apperr.Database(err)
	}
	return nil
}

// Find returns accounts matching f ordered by ID.
func (s *MemoryStore) Find(_ context.Context, f Filter) ([]*Account, error) {
	if err := s.fault("find"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Account
	for _, row := range s.rows {
		if matches(row, f) {
			a := row
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Insert creates an account, enforcing email uniqueness.
func (s *MemoryStore) Insert(ctx context.Context, na NewAccount) (*Account, error) {
	var created *Account
	err := s.write(ctx, "insert", func() error {
		if s.emailTaken(na.Email, 0) {
			return ErrAlreadyExists(na.Email)
		}
		now := s.now()
		a := Account{
			ID:         s.nextID,
			Name:       na.Name,
			Email:      na.Email,
			Credential: na.Credential,
			Role:       na.Role,
			State:      na.State,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.nextID++
		s.rows[a.ID] = a
		created = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update writes the mutable fields of a.
func (s *MemoryStore) Update(ctx context.Context, a *Account) error {
	return s.write(ctx, "update", func() error {
		row, ok := s.rows[a.ID]
		if !ok {
			return errNotFound(ByID(a.ID))
		}
		if s.emailTaken(a.Email, a.ID) {
			return ErrAlreadyExists(a.Email)
		}
		row.Name = a.Name
		row.Email = a.Email
		row.Credential = a.Credential
		row.State = a.State
		row.UpdatedAt = s.now()
		s.rows[a.ID] = row
		a.UpdatedAt = row.UpdatedAt
		a.Role = row.Role
		return nil
	})
}

// Delete removes the row with the given id.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	return s.write(ctx, "delete", func() error {
		if _, ok := s.rows[id]; !ok {
			return errNotFound(ByID(id))
		}
		delete(s.rows, id)
		return nil
	})
}

// write applies fn under the data lock. Outside a unit of work it takes
// the transaction lock too so a rollback cannot clobber it.
func (s *MemoryStore) write(ctx context.Context, op string, fn func() error) error {
	if err := s.fault(op); err != nil {
		return err
	}
	if !inMemoryTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *MemoryStore) fault(op string) error {
	if s.Fault == nil {
		return nil
	}
	if err := s.Fault(op); err != nil {
		return oops.With("operation", op).Wrap(err)
	}
	return nil
}

// emailTaken must be called with mu held.
func (s *MemoryStore) emailTaken(email string, except int64) bool {
	for id, row := range s.rows {
		if id != except && strings.EqualFold(row.Email, email) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) snapshot() (map[int64]Account, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[int64]Account, len(s.rows))
	for k, v := range s.rows {
		cp[k] = v
	}
	return cp, s.nextID
}

func (s *MemoryStore) restore(rows map[int64]Account, nextID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.nextID = nextID
}

func inMemoryTx(ctx context.Context) bool {
	v, _ := ctx.Value(memoryTxKey{}).(bool)
	return v
}

func matches(a Account, f Filter) bool {
	if f.ID != nil && a.ID != *f.ID {
		return false
	}
	if f.Email != nil && !strings.EqualFold(a.Email, *f.Email) {
		return false
	}
	if f.Name != nil && a.Name != *f.Name {
		return false
	}
	if f.Role != nil && a.Role != *f.Role {
		return false
	}
	if f.State != nil && a.State != *f.State {
		return false
	}
	return true
}
