// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// OTPDigits is the length of a one-time passcode.
const OTPDigits = 6

var otpSpace = big.NewInt(1_000_000)

func otpKey(accountID int64) string { return "otp:" + strconv.FormatInt(accountID, 10) }

// otpAttemptsKey counts guesses against one issued passcode, whichever
// pending sign-in they arrive through.
func otpAttemptsKey(nonce string) string { return "otp-attempts:" + nonce }

// issuedOTP is a passcode as stored: a per-issue nonce and the code.
type issuedOTP struct {
	nonce string
	code  string
}

func newIssuedOTP() (issuedOTP, error) {
	code, err := generateOTP()
	if err != nil {
		return issuedOTP{}, err
	}
	return issuedOTP{nonce: ulid.Make().String(), code: code}, nil
}

func (o issuedOTP) encode() []byte { return []byte(o.nonce + ":" + o.code) }

func decodeOTP(raw []byte) (issuedOTP, error) {
	nonce, code, ok := strings.Cut(string(raw), ":")
	if !ok || nonce == "" || code == "" {
		return issuedOTP{}, oops.Code("OTP_DECODE_FAILED").Errorf("malformed stored passcode")
	}
	return issuedOTP{nonce: nonce, code: code}, nil
}

// generateOTP returns a uniformly random zero-padded six-digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", oops.Code("OTP_GENERATION_FAILED").Wrap(err)
	}
	return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
}

func otpEqual(stored []byte, submitted string) bool {
	return subtle.ConstantTimeCompare(stored, []byte(submitted)) == 1
}
