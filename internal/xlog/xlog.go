// Package xlog sets up structured logging in the fixed on-disk format the
// supervisor has always used: every line goes to stdout prefixed with a
// timestamp and the process's PID, since PostgreSQL and its helper binaries
// already own stderr for their own chatter.
package xlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Setup installs a process-wide slog.Logger writing to w (os.Stdout in
// production) in "timestamp PGSUP.<pid>: message key=value ..." form. debug
// enables Debug-level records; verbose enables Info; otherwise only Warn and
// above are emitted, matching the teacher's three-tier verbosity scheme.
func Setup(w io.Writer, debug, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	h := &handler{w: w, level: level, pid: os.Getpid()}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

type handler struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Level
	pid   int
	attrs []slog.Attr
	group string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&b, " PGSUP.%d:  %s", h.pid, r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Any())
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *handler) WithGroup(name string) slog.Handler {
	next := *h
	if h.group == "" {
		next.group = name
	} else {
		next.group = h.group + "." + name
	}
	return &next
}

// Timestamp formats t the same way Handle does, exposed for callers that
// need to embed a log-style timestamp outside of a slog record.
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000")
}
