package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFixtureBackup(t *testing.T, archiveDir string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(BackupDir(archiveDir), 0o700))
	zip := BackupZipFile(archiveDir)
	require.NoError(t, os.WriteFile(zip, []byte("tar"), 0o600))
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(zip, stamp, stamp))
}

func TestShouldBackupFalseWhenRecent(t *testing.T) {
	archiveDir := t.TempDir()
	writeFixtureBackup(t, archiveDir, 1*time.Minute)

	should, err := ShouldBackup(archiveDir)
	require.NoError(t, err)
	require.False(t, should)
}

func TestShouldBackupTrueWhenNoBackupYet(t *testing.T) {
	archiveDir := t.TempDir()
	require.NoError(t, os.MkdirAll(BackupDir(archiveDir), 0o700))

	should, err := ShouldBackup(archiveDir)
	require.NoError(t, err)
	require.True(t, should)
}

func TestShouldBackupFalseWhenVetoed(t *testing.T) {
	archiveDir := t.TempDir()
	writeFixtureBackup(t, archiveDir, 2*time.Hour)
	require.NoError(t, os.WriteFile(DoNotBackupFile(archiveDir), []byte{}, 0o600))

	should, err := ShouldBackup(archiveDir)
	require.NoError(t, err)
	require.False(t, should)
}

func TestArchiveLogBytesIncludesBackupSubtree(t *testing.T) {
	archiveDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(archiveDir, "000000010000000000000001"), make([]byte, 100), 0o600))
	require.NoError(t, os.MkdirAll(BackupDir(archiveDir), 0o700))
	require.NoError(t, os.WriteFile(BackupZipFile(archiveDir), make([]byte, 200), 0o600))

	total, err := ArchiveLogBytes(archiveDir)
	require.NoError(t, err)
	require.EqualValues(t, 300, total)
}

func TestCaptureWithFakeBaseBackup(t *testing.T) {
	archiveDir := t.TempDir()

	for i := 0; i < 6; i++ {
		name := filepath.Join(archiveDir, "seg"+string(rune('a'+i)))
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o600))
		time.Sleep(5 * time.Millisecond)
	}

	fakeBin := filepath.Join(archiveDir, "fake-pg_basebackup")
	script := "#!/bin/sh\nprintf 'fake-tar-stream'\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0o755))

	err := Capture(context.Background(), archiveDir, t.TempDir(), fakeBin)
	require.NoError(t, err)

	data, err := os.ReadFile(BackupZipFile(archiveDir))
	require.NoError(t, err)
	require.Equal(t, "fake-tar-stream", string(data))

	_, err = os.Stat(BackupTempFile(archiveDir))
	require.True(t, os.IsNotExist(err))

	remaining, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	var segCount int
	for _, e := range remaining {
		if e.Name() != backupDirName {
			segCount++
		}
	}
	require.Equal(t, maintainedLogCount, segCount)
}

func TestCaptureRetriesOnFailure(t *testing.T) {
	archiveDir := t.TempDir()
	require.NoError(t, os.MkdirAll(BackupDir(archiveDir), 0o700))

	counterFile := filepath.Join(archiveDir, "attempts")
	fakeBin := filepath.Join(archiveDir, "fake-pg_basebackup")
	script := "#!/bin/sh\n" +
		"n=$(cat " + counterFile + " 2>/dev/null || echo 0)\n" +
		"n=$((n+1))\n" +
		"echo $n > " + counterFile + "\n" +
		"if [ \"$n\" -lt 2 ]; then exit 1; fi\n" +
		"printf 'ok'\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0o755))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := Capture(ctx, archiveDir, t.TempDir(), fakeBin)
	require.NoError(t, err)

	data, err := os.ReadFile(BackupZipFile(archiveDir))
	require.NoError(t, err)
	require.Equal(t, "ok", string(data))
}

func TestTouchReceiverFilesIgnoresMissingPid(t *testing.T) {
	archiveDir := t.TempDir()
	require.NoError(t, TouchReceiverFiles(archiveDir, 1<<30))
}
