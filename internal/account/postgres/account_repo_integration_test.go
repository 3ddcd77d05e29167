// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/account/postgres"
	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/internal/store"
)

func borrower(name, email string) account.NewAccount {
	return account.NewAccount{
		Name: name, Email: email, Credential: "cred",
		Role: account.RoleBorrower, State: account.StateActive,
	}
}

var _ = Describe("AccountRepository", func() {
	var (
		repo *postgres.AccountRepository
		tx   *store.Transactor
	)

	BeforeEach(func() {
		truncate()
		repo = postgres.NewAccountRepository(pool)
		tx = store.NewTransactor(pool, nil)
	})

	It("finds accounts by email case-insensitively", func() {
		created, err := repo.Insert(suiteCtx, borrower("alice", "alice@example.com"))
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).To(BeNumerically(">", 0))

		found, err := account.FindOne(suiteCtx, repo, account.ByEmail("ALICE@Example.com"))
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(created.ID))
		Expect(found.Role).To(Equal(account.RoleBorrower))
	})

	It("rejects a duplicate email regardless of case", func() {
		_, err := repo.Insert(suiteCtx, borrower("alice", "alice@example.com"))
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.Insert(suiteCtx, borrower("alice2", "ALICE@example.com"))
		Expect(apperr.Is(err, apperr.KindAlreadyExists)).To(BeTrue())
	})

	It("never changes the stored role on update", func() {
		created, err := repo.Insert(suiteCtx, borrower("bob", "bob@example.com"))
		Expect(err).NotTo(HaveOccurred())

		created.Role = account.RoleAdmin
		created.State = account.StateSuspended
		Expect(repo.Update(suiteCtx, created)).To(Succeed())
		Expect(created.Role).To(Equal(account.RoleBorrower))

		found, err := account.FindOne(suiteCtx, repo, account.ByID(created.ID))
		Expect(err).NotTo(HaveOccurred())
		Expect(found.Role).To(Equal(account.RoleBorrower))
		Expect(found.State).To(Equal(account.StateSuspended))
	})

	It("rolls back every write when the unit of work fails", func() {
		err := tx.InTransaction(suiteCtx, func(ctx context.Context) error {
			if _, err := repo.Insert(ctx, borrower("carol", "carol@example.com")); err != nil {
				return err
			}
			return apperr.New(apperr.KindValidation, "abort")
		})
		Expect(apperr.Is(err, apperr.KindValidation)).To(BeTrue())

		found, err := repo.Find(suiteCtx, account.ByEmail("carol@example.com"))
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeEmpty())
	})

	It("admits exactly one of many concurrent registrations for one email", func() {
		const attempts = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				err := tx.InTransaction(suiteCtx, func(ctx context.Context) error {
					existing, err := repo.Find(ctx, account.ByEmail("race@example.com"))
					if err != nil {
						return err
					}
					if len(existing) > 0 {
						return account.ErrAlreadyExists("race@example.com")
					}
					_, err = repo.Insert(ctx, borrower(fmt.Sprintf("racer-%d", i), "race@example.com"))
					return err
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case apperr.Is(err, apperr.KindAlreadyExists):
					conflicts++
				}
			}(i)
		}
		wg.Wait()

		Expect(successes).To(Equal(1))
		Expect(conflicts).To(Equal(attempts - 1))
	})

	It("reports a missing row on delete as NotFound", func() {
		Expect(apperr.Is(repo.Delete(suiteCtx, 4242), apperr.KindNotFound)).To(BeTrue())
	})
})
