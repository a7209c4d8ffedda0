// Package archive implements the backup/archive manager: the disk-sizing
// decision policy, atomic base-backup capture, WAL segment pruning, and the
// piggybacked touch of files still held open by the WAL receiver.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/vbp1/pgsupervisor/internal/diskspace"
	"github.com/vbp1/pgsupervisor/internal/fsutil"
)

const (
	backupDirName         = "base_backup"
	backupZipName         = "base_complete.tar.gz"
	backupTempName        = "base.tar.gz"
	doNotBackupName       = ".DoNotBackup"
	maintainedLogCount    = 4
	minBackupThresholdAge = 900 * time.Second
	minFreeSpaceGB        = 30
)

// BackupDir returns <archiveDir>/base_backup.
func BackupDir(archiveDir string) string { return filepath.Join(archiveDir, backupDirName) }

// BackupZipFile returns the path of the current, complete base backup.
func BackupZipFile(archiveDir string) string { return filepath.Join(BackupDir(archiveDir), backupZipName) }

// BackupTempFile returns the path of an in-flight base backup.
func BackupTempFile(archiveDir string) string { return filepath.Join(BackupDir(archiveDir), backupTempName) }

// DoNotBackupFile returns the path of the operator veto file.
func DoNotBackupFile(archiveDir string) string { return filepath.Join(BackupDir(archiveDir), doNotBackupName) }

// HasBackup reports whether a complete base backup currently exists.
func HasBackup(archiveDir string) bool {
	_, err := os.Stat(BackupZipFile(archiveDir))
	return err == nil
}

// ShouldBackup evaluates the heartbeat decision policy in the fixed order
// the spec requires: freshness short-circuit, free-space pressure, size-cap
// pressure, operator veto, then "no backup yet".
func ShouldBackup(archiveDir string) (bool, error) {
	zipFile := BackupZipFile(archiveDir)
	if fi, err := os.Stat(zipFile); err == nil {
		if time.Since(fi.ModTime()) < minBackupThresholdAge {
			return false, nil
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("archive: stat %s: %w", zipFile, err)
	}

	space, err := diskspace.Stat(archiveDir)
	if err != nil {
		return false, fmt.Errorf("archive: disk stat %s: %w", archiveDir, err)
	}
	if space.FreeGB() < minFreeSpaceGB {
		return true, nil
	}

	cap := diskspace.SizeCapGB(space.TotalGB())
	usedBytes, err := ArchiveLogBytes(archiveDir)
	if err != nil {
		return false, fmt.Errorf("archive: size %s: %w", archiveDir, err)
	}
	if usedBytes/(1<<30) > int64(cap) {
		return true, nil
	}

	if _, err := os.Stat(DoNotBackupFile(archiveDir)); err == nil {
		return false, nil
	}

	if !HasBackup(archiveDir) {
		return true, nil
	}

	return false, nil
}

// ArchiveLogBytes sums the size of every regular file under archiveDir,
// including the base_backup subtree.
func ArchiveLogBytes(archiveDir string) (int64, error) {
	var total int64
	err := filepath.Walk(archiveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return total, nil
}

// Capture performs a base backup: removes any lingering in-flight file,
// snapshots the current WAL segment list for later pruning, spawns
// pg_basebackup writing its tar stream into the temp file (retrying every
// 2s on failure, forever — transient PostgreSQL unavailability must not stop
// the supervisor), fsyncs and atomically renames the result into place, then
// prunes WAL segments older than the most recent maintainedLogCount.
func Capture(ctx context.Context, archiveDir, socketDir, baseBackupBin string) error {
	tempFile := BackupTempFile(archiveDir)
	if _, err := os.Stat(tempFile); err == nil {
		if err := os.Remove(tempFile); err != nil {
			return fmt.Errorf("archive: remove stale temp %s: %w", tempFile, err)
		}
	}

	preCapture, err := segmentsByCtime(archiveDir)
	if err != nil {
		return fmt.Errorf("archive: snapshot segments: %w", err)
	}

	if err := fsutil.MkdirP(BackupDir(archiveDir), 0o700); err != nil {
		return fmt.Errorf("archive: mkdir %s: %w", BackupDir(archiveDir), err)
	}

	if err := captureWithRetry(ctx, tempFile, socketDir, baseBackupBin); err != nil {
		return err
	}

	if err := fsyncFile(tempFile); err != nil {
		return fmt.Errorf("archive: fsync %s: %w", tempFile, err)
	}

	zipFile := BackupZipFile(archiveDir)
	if err := os.Rename(tempFile, zipFile); err != nil {
		return fmt.Errorf("archive: rename %s -> %s: %w", tempFile, zipFile, err)
	}
	slog.Info("archive: base backup captured", "path", zipFile)

	return pruneSegments(preCapture)
}

func captureWithRetry(ctx context.Context, tempFile, socketDir, bin string) error {
	for {
		out, err := os.OpenFile(tempFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("archive: create %s: %w", tempFile, err)
		}

		cmd := exec.CommandContext(ctx, bin, "-Ft", "-z", "-h", socketDir, "-D", "-")
		cmd.Stdout = out
		cmd.Stderr = os.Stderr

		slog.Info("archive: starting base backup")
		err = cmd.Run()
		out.Close()
		if err == nil {
			return nil
		}

		slog.Warn("archive: base backup failed, retrying in 2s", "err", err)
		if truncErr := os.Truncate(tempFile, 0); truncErr != nil {
			return fmt.Errorf("archive: truncate %s: %w", tempFile, truncErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func fsyncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

type segment struct {
	path  string
	ctime time.Time
}

func segmentsByCtime(archiveDir string) ([]segment, error) {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	segs := make([]segment, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		ct := info.ModTime()
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			ct = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
		}
		segs = append(segs, segment{path: filepath.Join(archiveDir, e.Name()), ctime: ct})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].ctime.Before(segs[j].ctime) })
	return segs, nil
}

// pruneSegments deletes every segment from the pre-capture snapshot except
// the most recent maintainedLogCount.
func pruneSegments(preCapture []segment) error {
	if len(preCapture) <= maintainedLogCount {
		return nil
	}
	toRemove := preCapture[:len(preCapture)-maintainedLogCount]
	for _, s := range toRemove {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("archive: prune %s: %w", s.path, err)
		}
	}
	return nil
}

// TouchReceiverFiles sets the access/modification time to now for every
// regular file the WAL receiver process (pid) currently has open under
// archiveDir, so host backup software does not skip a segment that is being
// actively written. Open files are discovered via /proc/<pid>/fd, a portable
// Linux-native substitute for shelling out to lsof.
func TouchReceiverFiles(archiveDir string, pid int) error {
	fdDir := filepath.Join("/proc", strconv.Itoa(pid), "fd")
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("archive: read %s: %w", fdDir, err)
	}

	now := time.Now()
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(fdDir, e.Name()))
		if err != nil {
			continue
		}
		if !strings.HasPrefix(target, archiveDir) {
			continue
		}
		if _, err := os.Stat(target); err != nil {
			continue
		}
		if err := os.Chtimes(target, now, now); err != nil {
			slog.Warn("archive: touch failed", "path", target, "err", err)
		}
	}
	return nil
}
