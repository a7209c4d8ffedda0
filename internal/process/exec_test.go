package process

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpawnWaitExitCode(t *testing.T) {
	c, err := Spawn(context.Background(), "", []string{"/bin/sh", "-c", "exit 7"}, os.Environ())
	require.NoError(t, err)

	code, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, code)
}

func TestSpawnMultipleWaiters(t *testing.T) {
	c, err := Spawn(context.Background(), "", []string{"/bin/sh", "-c", "sleep 0.1; exit 3"}, os.Environ())
	require.NoError(t, err)

	results := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			code, werr := c.Wait(context.Background())
			require.NoError(t, werr)
			results <- code
		}()
	}

	require.Equal(t, 3, <-results)
	require.Equal(t, 3, <-results)
}

func TestSpawnSignaledExit(t *testing.T) {
	c, err := Spawn(context.Background(), "", []string{"/bin/sh", "-c", "kill -TERM $$; sleep 1"}, os.Environ())
	require.NoError(t, err)

	code, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 128+int(syscall.SIGTERM), code)
}

func TestStopGracefullyFirstSignalSucceeds(t *testing.T) {
	c, err := Spawn(context.Background(), "", []string{"/bin/sh", "-c", "trap 'exit 0' TERM; sleep 5 & wait"}, os.Environ())
	require.NoError(t, err)

	code, err := StopGracefully(context.Background(), c, syscall.SIGTERM, 2*time.Second, syscall.SIGKILL, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, code)
}
