// Package restore implements the restore-before-run orchestration: unpack
// the most recent base backup over a fresh data directory and replay WAL
// up to the point PostgreSQL itself signals "recovery.done", before handing
// control back to the normal boot path.
package restore

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vbp1/pgsupervisor/internal/archive"
	"github.com/vbp1/pgsupervisor/internal/fsutil"
	"github.com/vbp1/pgsupervisor/internal/pathwait"
	"github.com/vbp1/pgsupervisor/internal/pgconfig"
	"github.com/vbp1/pgsupervisor/internal/process"
)

const recoveryConfContents = "restore_command = '/bin/cp ../backup/%f %p'\n"

// recoveryWaitTimeout bounds how long restore waits for PostgreSQL to
// finish replaying WAL and create recovery.done.
const recoveryWaitTimeout = 10000 * time.Second

// SpawnFunc starts PostgreSQL in restore mode against a private socket
// directory and returns its Child handle. Supplied by the caller so this
// package does not need to know the full postgres argv assembly.
type SpawnFunc func(ctx context.Context, restoreSocketDir string) (*process.Child, error)

// Run performs the full restore sequence described by the on-disk layout:
// unpartialize, archive the existing data dir aside, extract the base
// backup, write recovery.conf, disable WAL archiving, spawn PostgreSQL in
// restore mode, wait for recovery.done, then stop it.
func Run(ctx context.Context, dataDir, archiveDir, socketDir string, spawn SpawnFunc) error {
	if err := fsutil.Unpartialize(archiveDir); err != nil {
		return fmt.Errorf("restore: unpartialize: %w", err)
	}

	if err := archivePreviousDataDir(dataDir, archiveDir); err != nil {
		return err
	}

	if err := fsutil.MkdirP(dataDir, 0o700); err != nil {
		return fmt.Errorf("restore: mkdir %s: %w", dataDir, err)
	}

	if err := extractBaseBackup(archive.BackupZipFile(archiveDir), dataDir); err != nil {
		return fmt.Errorf("restore: extract base backup: %w", err)
	}

	doneMarker := filepath.Join(dataDir, "recovery.done")
	if err := os.Remove(doneMarker); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("restore: remove stale recovery.done: %w", err)
	}

	sentinel := filepath.Join(dataDir, ".NoRestoreNeeded")
	if err := os.Remove(sentinel); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("restore: remove sentinel: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dataDir, "recovery.conf"), []byte(recoveryConfContents), 0o600); err != nil {
		return fmt.Errorf("restore: write recovery.conf: %w", err)
	}

	if err := pgconfig.DisableFiles(dataDir); err != nil {
		return fmt.Errorf("restore: disable archiving: %w", err)
	}

	// Restrict pg_hba.conf to replication-only access while restore mode
	// runs, so nothing but the private restore socket can connect; restored
	// once recovery finishes and normal boot is about to take over.
	if err := pgconfig.RestrictConnectionsFile(dataDir); err != nil {
		return fmt.Errorf("restore: restrict connections: %w", err)
	}

	restoreSocketDir := filepath.Join(socketDir, "restore_only")
	if err := fsutil.MkdirP(restoreSocketDir, 0o700); err != nil {
		return fmt.Errorf("restore: mkdir %s: %w", restoreSocketDir, err)
	}

	child, err := spawn(ctx, restoreSocketDir)
	if err != nil {
		return fmt.Errorf("restore: spawn postgres: %w", err)
	}
	slog.Info("restore: postgres spawned in restore mode", "pid", child.Pid)

	waitCtx, cancel := context.WithTimeout(ctx, recoveryWaitTimeout)
	defer cancel()
	if err := pathwait.Exists(waitCtx, doneMarker); err != nil {
		return fmt.Errorf("restore: wait for recovery.done: %w", err)
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, 10000*time.Second)
	defer stopCancel()
	if _, err := process.StopGracefully(stopCtx, child, os.Interrupt, 10000*time.Second, os.Interrupt, 2*time.Second); err != nil {
		return fmt.Errorf("restore: stop postgres: %w", err)
	}

	if err := pgconfig.UnrestrictConnectionsFile(dataDir); err != nil {
		return fmt.Errorf("restore: unrestrict connections: %w", err)
	}

	return nil
}

func archivePreviousDataDir(dataDir, archiveDir string) error {
	if _, err := os.Stat(dataDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("restore: stat %s: %w", dataDir, err)
	}

	previous := archive.BackupZipFile(archiveDir) + ".previous"
	if err := os.RemoveAll(previous); err != nil {
		return fmt.Errorf("restore: remove old %s: %w", previous, err)
	}
	if err := os.Rename(dataDir, previous); err != nil {
		return fmt.Errorf("restore: move %s aside: %w", dataDir, err)
	}
	return nil
}

func extractBaseBackup(tarGzPath, destDir string) error {
	f, err := os.Open(tarGzPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", tarGzPath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gunzip %s: %w", tarGzPath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		target := filepath.Join(destDir, filepath.Clean("/"+hdr.Name)[1:])
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		case tar.TypeSymlink:
			_ = os.Symlink(hdr.Linkname, target)
		}
	}
}
