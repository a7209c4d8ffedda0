// Package backupexclude registers a path with the host's Time Machine
// backup exclusion list via tmutil(1). The supervisor's data directory
// churns constantly (WAL, fsync'd temp files); including it in a
// file-level host backup is both wasteful and pointless since the
// archive/base-backup mechanism is the real backup path.
package backupexclude

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
)

const tmutilBin = "tmutil"

// Register excludes path from Time Machine. On any platform other than
// darwin it returns without doing anything. On darwin, a missing tmutil or a
// failed addexclusion is a soft failure: it is logged and otherwise ignored,
// since backup exclusion is a nicety, not a correctness requirement.
func Register(ctx context.Context, path string) {
	if runtime.GOOS != "darwin" {
		return
	}
	bin, err := exec.LookPath(tmutilBin)
	if err != nil {
		slog.Debug("backupexclude: tmutil not found, skipping", "path", path)
		return
	}
	if out, err := exec.CommandContext(ctx, bin, "addexclusion", path).CombinedOutput(); err != nil {
		slog.Warn("backupexclude: addexclusion failed", "path", path, "err", err, "output", string(out))
	}
}
