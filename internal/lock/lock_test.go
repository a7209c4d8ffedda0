package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xpg.skt.lock")

	l1 := New(path)
	ok, err := l1.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer l1.Release()

	l2 := New(path)
	ok, err = l2.Acquire()
	require.NoError(t, err)
	require.False(t, ok, "lock should still be held by a live, owned process")
}

func TestAcquireRemovesStaleHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xpg.skt.lock")

	// A PID far beyond any plausible pid_max: guaranteed not alive.
	require.NoError(t, os.Symlink(strconv.Itoa(999999999), path))

	l := New(path)
	ok, err := l.Acquire()
	require.NoError(t, err)
	require.False(t, ok, "first Acquire after clearing a stale holder reports contention, caller retries")

	ok, err = l.Acquire()
	require.NoError(t, err)
	require.True(t, ok, "retry after stale removal succeeds")
}

func TestReleaseThenReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xpg.skt.lock")

	l1 := New(path)
	ok, err := l1.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l1.Release())

	l2 := New(path)
	ok, err = l2.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBequeathInheritRoundTrip(t *testing.T) {
	os.Unsetenv(carrierEnvVar)
	defer os.Unsetenv(carrierEnvVar)

	path := filepath.Join(t.TempDir(), "xpg.skt.lock")

	l1 := New(path)
	ok, err := l1.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan error, 1)
	go func() { done <- l1.Bequeath(5 * time.Second) }()

	// Give Bequeath a moment to publish the carrier before the successor reads it.
	time.Sleep(50 * time.Millisecond)

	successor := New(path)
	ok, err = successor.Acquire()
	require.NoError(t, err)
	require.True(t, ok, "successor inherits via the carrier match")

	// The successor runs in this same process, so its inherit rewrite leaves
	// our own PID as the target. Point the symlink at another PID, standing in
	// for a separate successor process, which is the change BequeathAwait
	// polls for.
	require.NoError(t, successor.rewrite(999999))

	require.NoError(t, <-done)
	require.False(t, l1.Held())
	require.True(t, successor.Held())
}
