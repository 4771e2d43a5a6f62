// Package lock serializes writers per key. The article store takes one key per
// article for snapshot writes and one registry-wide key for identity changes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/konfigurator/catalogstore/pkg/metrics"
)

// ErrTimeout is returned when a lock could not be acquired in time.
var ErrTimeout = errors.New("lock acquisition timed out")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker hands out exclusive locks by key. Lock blocks until the lock is held
// or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Acquire takes key on l, giving up after timeout (0 means only ctx bounds it).
func Acquire(ctx context.Context, l Locker, key string, timeout time.Duration) (Unlock, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, key, timeout)
		}
		return nil, err
	}
	return unlock, nil
}

func observeWait(locker string, started time.Time) {
	metrics.LockWait.WithLabelValues(locker).Observe(time.Since(started).Seconds())
}
