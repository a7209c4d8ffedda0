package pathwait

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExistsSucceedsOnceCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socket")
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(path, []byte("x"), 0o600)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, Exists(ctx, path))
}

func TestExistsTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, Exists(ctx, path))
}

func TestWaitNonEmptyBounded(t *testing.T) {
	dir := t.TempDir()
	err := WaitNonEmpty(context.Background(), dir, 2)
	require.Error(t, err)
}

func TestWaitNonEmptySucceeds(t *testing.T) {
	dir := t.TempDir()
	go func() {
		time.Sleep(1100 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "seg"), []byte("x"), 0o600)
	}()
	require.NoError(t, WaitNonEmpty(context.Background(), dir, 5))
}
