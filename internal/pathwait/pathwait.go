// Package pathwait polls the filesystem for paths to reach some condition:
// existence, or a non-empty directory. Used for the listening-socket wait
// at boot and the recovery.done wait during restore.
package pathwait

import (
	"context"
	"fmt"
	"os"
	"time"
)

const defaultInterval = time.Second

// Exists polls at 1Hz until path exists, or ctx is done. Unbounded by
// attempt count: callers that need a bound pass a context with a deadline.
func Exists(ctx context.Context, path string) error {
	return poll(ctx, func() (bool, error) {
		_, err := os.Stat(path)
		if err == nil {
			return true, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	})
}

// WaitNonEmpty polls at 1Hz, up to attempts times, for dir to contain at
// least one entry. Unlike Exists this is explicitly bounded: a directory
// that never receives an entry would otherwise hang the caller forever with
// the operator unable to tell why.
func WaitNonEmpty(ctx context.Context, dir string, attempts int) error {
	for i := 0; i < attempts; i++ {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if len(entries) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(defaultInterval):
		}
	}
	return fmt.Errorf("pathwait: %s still empty after %d attempts", dir, attempts)
}

// Gone polls at 1Hz until path no longer exists.
func Gone(ctx context.Context, path string) error {
	return poll(ctx, func() (bool, error) {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, nil
	})
}

func poll(ctx context.Context, check func() (bool, error)) error {
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(defaultInterval):
		}
	}
}
