package process

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// StopGracefully sends first, waits up to first, and if the child is still
// running sends second and waits up to second, then gives up. It is used to
// implement the supervisor's escalating PostgreSQL shutdown (SIGTERM/50s,
// then SIGINT/2s) without hard-coding signal pairs into the caller.
func StopGracefully(ctx context.Context, c *Child, first os.Signal, firstWait time.Duration, second os.Signal, secondWait time.Duration) (int, error) {
	if err := c.Signal(first); err != nil {
		slog.Warn("stop: initial signal failed", "pid", c.Pid, "signal", first, "err", err)
	}

	code, err := waitBounded(ctx, c, firstWait)
	if err == nil {
		return code, nil
	}

	slog.Warn("stop: grace period elapsed, escalating", "pid", c.Pid, "signal", second)
	if err := c.Signal(second); err != nil {
		slog.Warn("stop: escalated signal failed", "pid", c.Pid, "signal", second, "err", err)
	}

	return waitBounded(ctx, c, secondWait)
}

// waitBounded waits for c to exit, up to timeout. Returns context.DeadlineExceeded
// if the bound elapses first.
func waitBounded(ctx context.Context, c *Child, timeout time.Duration) (int, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Wait(wctx)
}
