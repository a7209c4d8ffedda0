package ctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSocketDirFromPostmasterPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postmaster.pid")
	contents := "12345\n/var/lib/pg/data\n1234567890\n5432\n/var/run/postgresql\nlocalhost\n 5432001   123456\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	dir, err := socketDirFromPostmasterPid(path)
	require.NoError(t, err)
	require.Equal(t, "/var/run/postgresql", dir)
}

func TestSocketDirFromPostmasterPidTooShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postmaster.pid")
	require.NoError(t, os.WriteFile(path, []byte("12345\n"), 0o600))

	_, err := socketDirFromPostmasterPid(path)
	require.Error(t, err)
}
