// Package archiver implements the Archiver personality: the exact command
// registered as PostgreSQL's archive_command. Invoked as
// "<binary> archive <src> <dest>", it copies one completed WAL segment into
// the archive directory, idempotently and atomically.
package archiver

import (
	"fmt"

	"github.com/vbp1/pgsupervisor/internal/fsutil"
)

// Run copies src to dest. If dest already exists and is the same size as
// src, it succeeds as a no-op (PostgreSQL retries archive_command on
// ambiguous failures, so a second identical call must not fail). Otherwise
// it copies to a ".in-progress" sibling, renames onto dest, and chmods to
// 0600.
func Run(src, dest string) error {
	same, err := fsutil.SameSize(dest, src)
	if err == nil && same {
		return nil
	}

	if err := fsutil.AtomicCopyFile(src, dest, ".in-progress", 0o600); err != nil {
		return fmt.Errorf("archiver: copy %s -> %s: %w", src, dest, err)
	}
	return nil
}
