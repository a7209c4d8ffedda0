package ctl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vbp1/pgsupervisor/internal/lock"
)

// TestLaunchServerDoesNotDeadlockOnBequeath guards against awaiting the
// bequeathed lock before the successor that is supposed to claim it has even
// been spawned: BequeathAwait must run concurrently with, not before, the
// pg_ctl spawn.
func TestLaunchServerDoesNotDeadlockOnBequeath(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o700))
	runDir := filepath.Join(dir, "run")
	require.NoError(t, os.MkdirAll(runDir, 0o700))

	lockPath := filepath.Join(runDir, ".xpg.skt.lock")
	l := lock.New(lockPath)
	held, err := l.Acquire()
	require.NoError(t, err)
	require.True(t, held)

	// Stands in for the spawned Server process claiming the bequeathed lock
	// via Acquire's inherit path: it just flips the symlink target.
	script := filepath.Join(dir, "fake-pg_ctl.sh")
	scriptBody := "#!/bin/sh\nln -sfn 999999 \"" + lockPath + "\"\nexit 0\n"
	require.NoError(t, os.WriteFile(script, []byte(scriptBody), 0o755))

	c := New(Options{Command: "start", DataDir: dataDir}, script, "/does/not/matter")

	result := make(chan int, 1)
	go func() { result <- c.launchServer(context.Background(), l) }()

	select {
	case code := <-result:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("launchServer deadlocked awaiting bequeathal before spawning its successor")
	}
}
