// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package secret stores short-lived secrets: one-time passcodes, action
// tokens, pending logins and sessions.
package secret

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Cache is a key-value store with per-entry expiry.
//
// Take is the only read that may be used to consume a secret: for one key,
// concurrent Take calls yield the value to at most one caller.
type Cache interface {
	// Put stores value under key for ttl, replacing any existing entry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the live value under key without removing it.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Take returns the live value under key and removes it atomically.
	Take(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Refresh replaces the value and expiry under key only if key is live.
	// It reports false when the key was missing.
	Refresh(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Swap stores value under key for ttl and returns the value it replaced.
	Swap(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, bool, error)

	// Incr adds one to the counter under key, creating it at zero, resets
	// its expiry to ttl and returns the new count.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache guarded by a single mutex.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put stores a copy of value under key.
func (c *MemoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errNonPositiveTTL(key, ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: stored, expiresAt: c.now().Add(ttl)}
	return nil
}

// Get returns the value under key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Take returns and removes the value under key in one critical section.
func (c *MemoryCache) Take(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	delete(c.entries, key)
	return e.value, true, nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Refresh overwrites key only while it is live.
func (c *MemoryCache) Refresh(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errNonPositiveTTL(key, ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); !ok {
		return false, nil
	}
	c.entries[key] = entry{value: stored, expiresAt: c.now().Add(ttl)}
	return true, nil
}

// Swap replaces the value under key in one critical section.
func (c *MemoryCache) Swap(_ context.Context, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	if ttl <= 0 {
		return nil, false, errNonPositiveTTL(key, ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.live(key)
	c.entries[key] = entry{value: stored, expiresAt: c.now().Add(ttl)}
	if !ok {
		return nil, false, nil
	}
	return prev.value, true, nil
}

// Incr increments the decimal counter under key.
func (c *MemoryCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, errNonPositiveTTL(key, ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	if e, ok := c.live(key); ok {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, errNotCounter(key, err)
		}
		n = parsed
	}
	n++
	c.entries[key] = entry{value: []byte(strconv.FormatInt(n, 10)), expiresAt: c.now().Add(ttl)}
	return n, nil
}

// Sweep removes expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// live must be called with mu held. Expired entries are dropped on sight.
func (c *MemoryCache) live(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}
