// Package lock serialises work on a single consumer across goroutines and,
// with the Redis backend, across engine instances.
package lock

import (
	"context"
	"errors"
)

// ErrTimeout is returned when a key stays held for longer than the wait timeout.
var ErrTimeout = errors.New("lock wait timed out")

// Locker acquires exclusive, keyed locks.
type Locker interface {
	// Lock blocks until key is free, the wait timeout elapses or ctx is done.
	// The returned release func is safe to call more than once.
	Lock(ctx context.Context, key string) (release func(), err error)
}
