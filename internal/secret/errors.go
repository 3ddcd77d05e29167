// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package secret

import (
	"time"

	"github.com/samber/oops"
)

func errNonPositiveTTL(key string, ttl time.Duration) error {
	return oops.Code("CACHE_INVALID_TTL").
		With("key", key).
		With("ttl", ttl.String()).
		Errorf("ttl must be positive")
}

func errNotCounter(key string, err error) error {
	return oops.Code("CACHE_NOT_COUNTER").
		With("key", key).
		Wrapf(err, "value is not a counter")
}
