// Package fsutil collects the small filesystem primitives the supervisor and
// archive manager share: directory creation with an explicit mode, WAL
// segment pruning, partial-segment normalization, and atomic file copy.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MkdirP creates path (and parents) with mode if it does not already exist.
func MkdirP(path string, mode os.FileMode) error {
	if path == "" {
		return fmt.Errorf("fsutil: empty path")
	}
	return os.MkdirAll(path, mode)
}

// CleanupDir removes every entry inside dir, leaving dir itself in place.
func CleanupDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

const (
	partialSuffix    = ".partial"
	inProgressSuffix = ".in-progress"
)

// PruneArchiveOnBoot implements the Server boot-time archive cleanup
// (invariant 4 and property 2): any ".partial" whose complete sibling
// exists is removed, and every ".in-progress" leftover from a crashed
// Archiver invocation is removed unconditionally.
func PruneArchiveOnBoot(archiveDir string) error {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fsutil: read %s: %w", archiveDir, err)
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}

	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, inProgressSuffix):
			if err := os.Remove(filepath.Join(archiveDir, name)); err != nil {
				return fmt.Errorf("fsutil: prune %s: %w", name, err)
			}
		case strings.HasSuffix(name, partialSuffix):
			complete := strings.TrimSuffix(name, partialSuffix)
			if names[complete] {
				if err := os.Remove(filepath.Join(archiveDir, name)); err != nil {
					return fmt.Errorf("fsutil: prune %s: %w", name, err)
				}
			}
		}
	}
	return nil
}

// Unpartialize is the inverse of PruneArchiveOnBoot's partial handling: any
// ".partial" whose complete sibling does NOT exist is renamed onto the
// complete name, exposing in-flight-at-crash WAL to replay before a restore.
func Unpartialize(archiveDir string) error {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fsutil: read %s: %w", archiveDir, err)
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}

	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, partialSuffix) {
			continue
		}
		complete := strings.TrimSuffix(name, partialSuffix)
		if names[complete] {
			continue
		}
		if err := os.Rename(filepath.Join(archiveDir, name), filepath.Join(archiveDir, complete)); err != nil {
			return fmt.Errorf("fsutil: unpartialize %s: %w", name, err)
		}
	}
	return nil
}

// AtomicCopyFile copies src to dst via a sibling temp file with the given
// tempExt extension, then renames onto dst and chmods it to mode. This is
// the exact choreography the Archiver personality uses to land a WAL
// segment: a reader of dst never observes a partial write.
func AtomicCopyFile(src, dst, tempExt string, mode os.FileMode) error {
	tmp := dst + tempExt

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fsutil: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("fsutil: create %s: %w", tmp, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsutil: copy %s -> %s: %w", src, tmp, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fsutil: close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fsutil: rename %s -> %s: %w", tmp, dst, err)
	}
	return os.Chmod(dst, mode)
}

// SameSize reports whether a and b exist and have identical sizes, used by
// the Archiver personality's no-op short-circuit.
func SameSize(a, b string) (bool, error) {
	fa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	fb, err := os.Stat(b)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fa.Size() == fb.Size(), nil
}
