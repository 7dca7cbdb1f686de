// Package coordination provides the small set of atomic primitives that
// every cross-request invariant in inkvault is built on: session tokens,
// sync leases, signed-URL nonces, login challenges and rate limits.
//
// The interface is deliberately minimal so the SQL-backed production
// implementation can later be swapped for a distributed backend without
// touching consumers. Each primitive is individually atomic; composed
// invariants must be expressed as a single call (AcquireLock, PopValue)
// rather than a read-modify-write sequence.
package coordination

import (
	"context"
	"time"
)

// Service is the coordination primitive set. TTLs of zero mean no expiry.
// Expiry is lazy: nothing runs in the background, expired entries are
// treated as absent at access time.
type Service interface {
	// SetValue stores value under key, replacing any previous value.
	SetValue(ctx context.Context, key, value string, ttl time.Duration) error

	// GetValue returns the value for key, or models.ErrKeyNotFound.
	GetValue(ctx context.Context, key string) (string, error)

	// DeleteValue removes key. Deleting an absent key is not an error.
	DeleteValue(ctx context.Context, key string) error

	// PopValue atomically removes and returns the value for key.
	// Returns models.ErrKeyNotFound if the key is absent or expired.
	// At most one concurrent caller observes the value.
	PopValue(ctx context.Context, key string) (string, error)

	// Increment atomically adds one to the counter at key and returns the
	// new value. A fresh counter starts at 1 and carries the given TTL;
	// an existing counter keeps its original expiry.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// AcquireLock takes the named lock for owner. Re-acquiring a lock
	// already held by the same owner refreshes its TTL and succeeds.
	// Returns false if another owner holds it unexpired.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock drops the named lock if held by owner.
	ReleaseLock(ctx context.Context, key, owner string) error

	// GetLockOwner returns the current unexpired holder of the lock,
	// or models.ErrKeyNotFound.
	GetLockOwner(ctx context.Context, key string) (string, error)
}
