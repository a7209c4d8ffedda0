// Package lock implements the inheritable file-system lock used to guard the
// control socket across process boundaries. The lock is a symlink whose
// target is the decimal PID of the holder; ownership transfer (bequeathal to
// a freshly spawned successor) is expressed as an atomic symlink+rename
// replacement so there is never a window with no holder at all.
package lock

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/vbp1/pgsupervisor/internal/procutil"
)

// Lock is an inheritable file-system lock identified by an absolute path.
type Lock struct {
	path string
	held bool
}

// New returns a lock for the symlink at path. path should be absolute;
// acquire/bequeath semantics depend on comparing it against entries in the
// environment carrier, which are always absolute.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock's symlink path.
func (l *Lock) Path() string { return l.path }

// Held reports whether this Lock instance currently believes it holds the
// lock. It does not re-check the filesystem.
func (l *Lock) Held() bool { return l.held }

// Acquire attempts to become the holder. It first checks whether the current
// process was handed the lock by its parent via the environment carrier
// (INHERITABLE_LOCK): if the carrier names this path with a PID matching the
// symlink's current target, the process inherits the lock by atomically
// rewriting the symlink to its own PID. Otherwise it attempts a plain
// symlink(pid, path). If that fails because the path exists, it probes the
// recorded PID: a dead or foreign-owned holder's stale symlink is removed and
// Acquire returns false so the caller may retry; a live, owned holder leaves
// the symlink untouched and Acquire returns false.
func (l *Lock) Acquire() (bool, error) {
	carrier := readCarrier()
	if pidStr, ok := carrier[l.path]; ok {
		target, err := os.Readlink(l.path)
		if err == nil && target == pidStr {
			if err := l.rewrite(os.Getpid()); err != nil {
				return false, fmt.Errorf("lock: inherit rewrite %s: %w", l.path, err)
			}
			delete(carrier, l.path)
			carrier.writeEnv()
			l.held = true
			slog.Info("lock: inherited", "path", l.path, "pid", os.Getpid())
			return true, nil
		}
	}

	err := os.Symlink(strconv.Itoa(os.Getpid()), l.path)
	if err == nil {
		l.held = true
		slog.Info("lock: acquired", "path", l.path, "pid", os.Getpid())
		return true, nil
	}
	if !os.IsExist(err) {
		return false, fmt.Errorf("lock: symlink %s: %w", l.path, err)
	}

	target, rerr := os.Readlink(l.path)
	if rerr != nil {
		// Raced with the holder releasing; treat as contended, caller retries.
		return false, nil
	}
	holderPID, perr := strconv.Atoi(target)
	if perr != nil {
		return false, nil
	}
	if procutil.Alive(holderPID) {
		if owned, oerr := procutil.OwnedByCurrentUser(holderPID); oerr == nil && owned {
			return false, nil
		}
	}

	slog.Warn("lock: removing stale holder", "path", l.path, "stale_pid", holderPID)
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("lock: remove stale %s: %w", l.path, err)
	}
	return false, nil
}

// BequeathPrepare writes the environment carrier entry a successor will see
// when it inherits os.Environ() at spawn time. It returns immediately: the
// caller must spawn the successor with an inherited environment afterward,
// then call BequeathAwait to block until the successor actually claims the
// lock. Splitting prepare from await lets the caller kick off the spawn
// without first blocking on it — spawning only after the wait would
// deadlock, since nothing can inherit the lock until the successor exists.
func (l *Lock) BequeathPrepare() error {
	if !l.held {
		return fmt.Errorf("lock: bequeath %s: not held", l.path)
	}

	ourPID := strconv.Itoa(os.Getpid())
	carrier := readCarrier()
	carrier[l.path] = ourPID
	carrier.writeEnv()
	l.held = false
	return nil
}

// BequeathAwait blocks (polling at 1Hz) until the symlink target changes
// away from our own PID, meaning a successor spawned after BequeathPrepare
// called Acquire and won the inherit path.
func (l *Lock) BequeathAwait(timeout time.Duration) error {
	ourPID := strconv.Itoa(os.Getpid())
	deadline := time.Now().Add(timeout)
	for {
		target, err := os.Readlink(l.path)
		if err == nil && target != ourPID {
			slog.Info("lock: bequeathed", "path", l.path, "successor_pid", target)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock: bequeath %s: timed out waiting for successor", l.path)
		}
		time.Sleep(time.Second)
	}
}

// Bequeath is BequeathPrepare immediately followed by BequeathAwait, for
// callers (such as tests) that don't need to interleave a spawn between the
// two. Production callers that spawn a successor should call the two halves
// separately around the spawn instead.
func (l *Lock) Bequeath(timeout time.Duration) error {
	if err := l.BequeathPrepare(); err != nil {
		return err
	}
	return l.BequeathAwait(timeout)
}

// Release unlinks the symlink. A no-op if already absent.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: release %s: %w", l.path, err)
	}
	l.held = false
	return nil
}

// rewrite atomically replaces the symlink's target via symlink(tempname) +
// rename(tempname, path), so there is no instant at which the lock has no
// holder at all.
func (l *Lock) rewrite(pid int) error {
	tmp := fmt.Sprintf("%s.tmp-%d-%d", l.path, os.Getpid(), time.Now().UnixNano())
	if err := os.Symlink(strconv.Itoa(pid), tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
