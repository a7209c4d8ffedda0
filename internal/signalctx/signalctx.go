// Package signalctx turns process signals into context cancellation for the
// Server personality's top-level reactor shutdown.
package signalctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals returns a context canceled on SIGINT or SIGTERM (or on parent
// cancellation), plus the raw signal channel, which receives those same two
// signals.
func WithSignals(parent context.Context) (ctx context.Context, cancel context.CancelFunc, sigCh <-chan os.Signal) {
	ctx, cancel = context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-ctx.Done():
		case <-c:
			cancel()
		}
	}()

	return ctx, cancel, c
}
