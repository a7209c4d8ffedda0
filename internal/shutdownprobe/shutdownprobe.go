// Package shutdownprobe answers whether the host operating system itself is
// in the middle of shutting down, so an unexpected PostgreSQL exit during a
// whole-machine teardown can be logged quietly instead of as a surprise.
package shutdownprobe

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

const (
	notifyutilBin = "notifyutil"
	notifyKey     = "com.apple.system.loginwindow.shutdownInitiated"
)

// Check reports whether the system is shutting down. It queries notifyutil
// for the loginwindow shutdown-initiated notification state, a darwin-only
// mechanism; on any other platform, or if notifyutil is missing, it always
// returns false, since no sibling repo or original_source file offers a
// portable equivalent.
func Check(ctx context.Context) bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	bin, err := exec.LookPath(notifyutilBin)
	if err != nil {
		return false
	}
	out, err := exec.CommandContext(ctx, bin, "-g", notifyKey).Output()
	if err != nil {
		slog.Debug("shutdownprobe: notifyutil query failed", "err", err)
		return false
	}
	fields := strings.Fields(string(out))
	return !(len(fields) == 2 && fields[0] == notifyKey && fields[1] == "0")
}
