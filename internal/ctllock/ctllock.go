// Package ctllock wraps gofrs/flock as the Controller's process-wide
// serialization lock (<socketDir>/.xpg_ctl.pid), which is a plain blocking
// flock(2) with a timeout rather than the inheritable symlink lock used for
// the control socket itself: only one Controller invocation may be mutating
// control-plane state (racing an acquire-or-connect decision) at a time, and
// this lock is never hand off to a child process.
package ctllock

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// Lock serializes Controller invocations against <socketDir>/.xpg_ctl.pid.
type Lock struct {
	fl *flock.Flock
}

// New returns a serialization lock at path.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire blocks, retrying every 100ms, until the lock is obtained or timeout
// elapses.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := l.fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("ctllock: acquire %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("ctllock: acquire %s: timed out", l.fl.Path())
	}
	return nil
}

// Release unlocks. Safe to call even if Acquire failed.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
