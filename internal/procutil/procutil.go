// Package procutil provides small process-liveness probes built on
// golang.org/x/sys/unix, used by the inheritable lock's stale-owner check.
package procutil

import (
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Alive reports whether pid names a process that is still running, using a
// zero-signal kill(2) probe.
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// OwnedByCurrentUser reports whether pid belongs to a process owned by the
// calling process's effective UID. Used to decide whether a stale lock
// symlink may safely be removed: a live process we don't own must not be
// second-guessed.
func OwnedByCurrentUser(pid int) (bool, error) {
	fi, err := os.Stat("/proc/" + strconv.Itoa(pid))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false, nil
	}
	return int(st.Uid) == os.Geteuid(), nil
}
