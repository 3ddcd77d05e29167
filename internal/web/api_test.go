// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package web_test

import (
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/notify"
)

var _ = Describe("HTTP API", func() {
	var a *app

	BeforeEach(func() {
		a = newApp()
	})

	Describe("borrower sign-up and sign-in", func() {
		It("registers, signs in with a passcode and reads the profile", func() {
			b := a.browser()

			resp := b.post("/borrower/register", map[string]string{
				"name": "Ada", "email": "Ada@Example.com", "password": "correct horse",
			})
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.Body["account"]).To(HaveKeyWithValue("email", "ada@example.com"))
			Expect(resp.Body["account"]).To(HaveKeyWithValue("role", "BORROWER"))

			Expect(b.get("/me").Status).To(Equal(http.StatusUnauthorized))

			b.signIn("borrower", "ada@example.com", "correct horse")

			resp = b.get("/me")
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.Body["account"]).To(HaveKeyWithValue("name", "Ada"))
		})

		It("rejects a duplicate email", func() {
			a.seed("Ada", "ada@example.com", "pw", account.RoleBorrower)

			resp := a.browser().post("/borrower/register", map[string]string{
				"name": "Other", "email": "ADA@example.com", "password": "pw2",
			})
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
			Expect(resp.code()).To(Equal("ALREADY_EXISTS"))
		})

		It("rejects a malformed body", func() {
			b := a.browser()
			resp := b.do(http.MethodPost, "/borrower/register", "not an object")
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
			Expect(resp.code()).To(Equal("VALIDATION_ERROR"))
		})
	})

	Describe("passcode step", func() {
		BeforeEach(func() {
			a.seed("Lin", "lin@example.com", "shelves", account.RoleLibrarian)
		})

		It("accepts the right code after a wrong one", func() {
			b := a.browser()
			Expect(b.post("/librarian/login", map[string]string{"email": "lin@example.com", "password": "shelves"}).Status).
				To(Equal(http.StatusOK))
			code, _ := a.mail.LastOTP("lin@example.com")

			wrong := b.post("/verify-otp", map[string]string{"otp": flip(code)})
			Expect(wrong.Status).To(Equal(http.StatusUnauthorized))
			Expect(wrong.code()).To(Equal("INVALID_OTP"))

			Expect(b.post("/verify-otp", map[string]string{"otp": code}).Status).To(Equal(http.StatusOK))
			Expect(b.get("/me").Status).To(Equal(http.StatusOK))
		})

		It("refuses to verify without a pending login", func() {
			resp := a.browser().post("/verify-otp", map[string]string{"otp": "123456"})
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.code()).To(Equal("NOT_AUTHENTICATED"))
		})

		It("answers a wrong password and an unknown email identically", func() {
			wrongPassword := a.browser().post("/librarian/login", map[string]string{"email": "lin@example.com", "password": "nope"})
			unknown := a.browser().post("/librarian/login", map[string]string{"email": "ghost@example.com", "password": "nope"})

			Expect(wrongPassword).To(Equal(unknown))
			Expect(wrongPassword.Status).To(Equal(http.StatusUnauthorized))
			Expect(wrongPassword.code()).To(Equal("INVALID_CREDENTIALS"))
			Expect(a.mail.Count(notify.KindOTP)).To(BeZero())
		})

		It("keeps roles apart", func() {
			resp := a.browser().post("/borrower/login", map[string]string{"email": "lin@example.com", "password": "shelves"})
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.code()).To(Equal("INVALID_CREDENTIALS"))
		})

		It("returns not found for an unknown role path", func() {
			resp := a.browser().post("/janitor/login", map[string]string{"email": "lin@example.com", "password": "shelves"})
			Expect(resp.Status).To(Equal(http.StatusNotFound))
		})
	})

	Describe("password reset", func() {
		It("mails a link and replaces the password once", func() {
			a.seed("Ada", "ada@example.com", "old secret", account.RoleBorrower)
			b := a.browser()

			resp := b.post("/forgot-password", map[string]string{"email": "ada@example.com", "redirect": "https://qread.example/reset"})
			Expect(resp.Status).To(Equal(http.StatusOK))
			call, ok := a.mail.Last(notify.KindPasswordReset, "ada@example.com")
			Expect(ok).To(BeTrue())
			Expect(call.Redirect).To(Equal("https://qread.example/reset"))

			Expect(b.post("/reset-password", map[string]string{"secret": call.Secret, "password": "new secret"}).Status).
				To(Equal(http.StatusOK))

			replay := b.post("/reset-password", map[string]string{"secret": call.Secret, "password": "third"})
			Expect(replay.Status).To(Equal(http.StatusUnauthorized))
			Expect(replay.code()).To(Equal("INVALID_OR_EXPIRED_SECRET"))

			old := b.post("/borrower/login", map[string]string{"email": "ada@example.com", "password": "old secret"})
			Expect(old.Status).To(Equal(http.StatusUnauthorized))
			b.signIn("borrower", "ada@example.com", "new secret")
		})

		It("answers 200 for an unknown email without mailing", func() {
			resp := a.browser().post("/forgot-password", map[string]string{"email": "ghost@example.com"})
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(a.mail.Count(notify.KindPasswordReset)).To(BeZero())
		})
	})

	Describe("librarian invitation", func() {
		var admin *browser

		BeforeEach(func() {
			a.seed("Root", "root@example.com", "admin pw", account.RoleAdmin)
			admin = a.browser()
			admin.signIn("admin", "root@example.com", "admin pw")
		})

		It("creates the librarian from the invited address", func() {
			resp := admin.post("/admin/register-librarian", map[string]string{"email": "new@example.com", "redirect": "https://qread.example/join"})
			Expect(resp.Status).To(Equal(http.StatusOK))
			call, ok := a.mail.Last(notify.KindInvite, "new@example.com")
			Expect(ok).To(BeTrue())

			guest := a.browser()
			resp = guest.post("/new-librarian", map[string]string{"secret": call.Secret, "name": "Lin", "password": "stacks"})
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.Body["account"]).To(HaveKeyWithValue("role", "LIBRARIAN"))
			Expect(resp.Body["account"]).To(HaveKeyWithValue("email", "new@example.com"))

			Expect(guest.post("/new-librarian", map[string]string{"secret": call.Secret, "name": "Lin", "password": "stacks"}).Status).
				To(Equal(http.StatusUnauthorized))

			guest.signIn("librarian", "new@example.com", "stacks")
		})

		It("is closed to non-admins", func() {
			a.seed("Ada", "ada@example.com", "pw", account.RoleBorrower)
			borrower := a.browser()
			borrower.signIn("borrower", "ada@example.com", "pw")

			resp := borrower.post("/admin/register-librarian", map[string]string{"email": "x@example.com"})
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.code()).To(Equal("UNAUTHORIZED"))
			Expect(a.mail.Count(notify.KindInvite)).To(BeZero())
		})
	})

	Describe("administration", func() {
		var (
			admin    *browser
			borrower *browser
			target   *account.Account
		)

		BeforeEach(func() {
			a.seed("Root", "root@example.com", "admin pw", account.RoleAdmin)
			target = a.seed("Ada", "ada@example.com", "pw", account.RoleBorrower)
			admin = a.browser()
			admin.signIn("admin", "root@example.com", "admin pw")
			borrower = a.browser()
			borrower.signIn("borrower", "ada@example.com", "pw")
		})

		It("ends a live session when the account is suspended", func() {
			Expect(borrower.get("/me").Status).To(Equal(http.StatusOK))

			resp := admin.post(fmt.Sprintf("/admin/accounts/%d/suspend", target.ID), nil)
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.Body["account"]).To(HaveKeyWithValue("state", "SUSPENDED"))

			Expect(borrower.get("/me").Status).To(Equal(http.StatusUnauthorized))
			login := borrower.post("/borrower/login", map[string]string{"email": "ada@example.com", "password": "pw"})
			Expect(login.code()).To(Equal("ACCOUNT_STATE_ERROR"))

			Expect(admin.post(fmt.Sprintf("/admin/accounts/%d/reinstate", target.ID), nil).Status).To(Equal(http.StatusOK))
			borrower.signIn("borrower", "ada@example.com", "pw")
		})

		It("lists accounts by role", func() {
			resp := admin.get("/admin/accounts?role=borrower")
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.Body["accounts"]).To(HaveLen(1))
		})

		It("rejects a malformed account id", func() {
			resp := admin.post("/admin/accounts/abc/suspend", nil)
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("logout", func() {
		It("is idempotent and ends the session", func() {
			a.seed("Ada", "ada@example.com", "pw", account.RoleBorrower)
			b := a.browser()
			b.signIn("borrower", "ada@example.com", "pw")

			Expect(b.post("/logout", nil).Status).To(Equal(http.StatusOK))
			Expect(b.post("/logout", nil).Status).To(Equal(http.StatusOK))
			Expect(b.get("/me").Status).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("change password", func() {
		It("requires the current password", func() {
			a.seed("Ada", "ada@example.com", "pw", account.RoleBorrower)
			b := a.browser()
			b.signIn("borrower", "ada@example.com", "pw")

			bad := b.post("/change-password", map[string]string{"old_password": "nope", "new_password": "pw2"})
			Expect(bad.Status).To(Equal(http.StatusUnauthorized))

			Expect(b.post("/change-password", map[string]string{"old_password": "pw", "new_password": "pw2"}).Status).
				To(Equal(http.StatusOK))
			a.browser().signIn("borrower", "ada@example.com", "pw2")
		})
	})
})

// flip returns a six-digit code that differs from code.
func flip(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
