package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking. Acquire returns ErrLockHeld
// when another holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
