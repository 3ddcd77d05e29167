// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package credential hashes and verifies account passwords with argon2id.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"

	"github.com/qread/qread/internal/apperr"
)

// CodeHashingFailure marks infrastructure failures while hashing. It is not
// a business kind, so it classifies as a database-class fault.
const CodeHashingFailure = "HASHING_FAILURE"

// Params is the argon2id cost policy.
type Params struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
	SaltLen   uint32 `koanf:"-"`
	KeyLen    uint32 `koanf:"-"`
}

// DefaultParams returns the production policy: t=2, m=19 MiB, p=1.
func DefaultParams() Params {
	return Params{
		Time:      2,
		MemoryKiB: 19 * 1024,
		Threads:   1,
		SaltLen:   16,
		KeyLen:    32,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = d.MemoryKiB
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
	if p.SaltLen == 0 {
		p.SaltLen = d.SaltLen
	}
	if p.KeyLen == 0 {
		p.KeyLen = d.KeyLen
	}
	return p
}

// Hasher produces and checks password credentials.
type Hasher interface {
	// Hash produces an opaque credential for plaintext.
	Hash(plaintext string) (string, error)

	// Verify reports whether plaintext matches the credential.
	// A mismatch is (false, nil); an error means the credential is malformed.
	Verify(plaintext, credential string) (bool, error)

	// NeedsRehash reports whether the credential was produced under a weaker
	// policy than the current one.
	NeedsRehash(credential string) bool
}

// Argon2idHasher implements Hasher using argon2id in PHC string format.
type Argon2idHasher struct {
	params Params
}

// NewArgon2idHasher creates a hasher for the given policy. Zero fields take
// the defaults.
func NewArgon2idHasher(params Params) *Argon2idHasher {
	return &Argon2idHasher{params: params.withDefaults()}
}

// Params returns the active policy.
func (h *Argon2idHasher) Params() Params {
	return h.params
}

// Hash produces an argon2id credential for plaintext.
func (h *Argon2idHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", apperr.New(apperr.KindValidation, "password cannot be empty")
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeHashingFailure).With("operation", "generate salt").Wrap(err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=19456,t=2,p=1$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks plaintext against an argon2id credential using the
// parameters embedded in the credential.
func (h *Argon2idHasher) Verify(plaintext, credential string) (bool, error) {
	parsed, err := parse(credential)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(plaintext), parsed.salt, parsed.params.Time,
		parsed.params.MemoryKiB, parsed.params.Threads, parsed.params.KeyLen)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsRehash returns true for non-argon2id credentials and for credentials
// whose cost parameters fall below the current policy.
func (h *Argon2idHasher) NeedsRehash(credential string) bool {
	parsed, err := parse(credential)
	if err != nil {
		return true
	}
	return parsed.version < argon2.Version ||
		parsed.params.Time < h.params.Time ||
		parsed.params.MemoryKiB < h.params.MemoryKiB ||
		parsed.params.Threads < h.params.Threads ||
		parsed.params.KeyLen < h.params.KeyLen
}

type parsedCredential struct {
	version int
	params  Params
	salt    []byte
	key     []byte
}

func parse(credential string) (*parsedCredential, error) {
	parts := strings.Split(credential, "$")
	if len(parts) != 6 {
		return nil, oops.Code("INVALID_CREDENTIAL_FORMAT").Errorf("invalid credential format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("INVALID_CREDENTIAL_FORMAT").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	out := &parsedCredential{}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &out.version); err != nil {
		return nil, oops.Code("INVALID_CREDENTIAL_FORMAT").Wrap(err)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, oops.Code("INVALID_CREDENTIAL_FORMAT").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return nil, oops.Code("INVALID_CREDENTIAL_FORMAT").Errorf("threads value %d out of range", threads)
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, oops.Code("INVALID_CREDENTIAL_FORMAT").Wrap(err)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, oops.Code("INVALID_CREDENTIAL_FORMAT").Wrap(err)
	}

	keyLen := len(out.key)
	if keyLen == 0 || keyLen > 1<<30 {
		return nil, oops.Code("INVALID_CREDENTIAL_FORMAT").Errorf("invalid key length: %d", keyLen)
	}

	out.params = Params{
		Time:      iterations,
		MemoryKiB: memory,
		Threads:   uint8(threads),
		SaltLen:   uint32(len(out.salt)),
		KeyLen:    uint32(keyLen),
	}
	return out, nil
}
