package serverconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func getenvMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseDerivesDataAndSocketDir(t *testing.T) {
	cfg, err := Parse([]string{"-D", "/data/pg", "-k", "/run/pg"}, getenvMap(nil))
	require.NoError(t, err)
	require.Equal(t, "/data/pg", cfg.DataDir)
	require.Equal(t, "/run/pg", cfg.SocketDir)
}

func TestParsePGDATAOverridesFlag(t *testing.T) {
	cfg, err := Parse([]string{"-D", "/data/pg"}, getenvMap(map[string]string{"PGDATA": "/override"}))
	require.NoError(t, err)
	require.Equal(t, "/override", cfg.DataDir)
}

func TestParseDashCUnixSocketDirectory(t *testing.T) {
	cfg, err := Parse([]string{"-D", "/data/pg", "-c", "unix_socket_directory=/run/pg"}, getenvMap(nil))
	require.NoError(t, err)
	require.Equal(t, "/run/pg", cfg.SocketDir)
}

func TestParseDashCLogDirectory(t *testing.T) {
	cfg, err := Parse([]string{"-D", "/data/pg", "-c", "log_directory=/var/log/pg"}, getenvMap(nil))
	require.NoError(t, err)
	require.Equal(t, "/var/log/pg", cfg.LogDir)
}

func TestParseNoDataDirectoryFails(t *testing.T) {
	_, err := Parse([]string{"-k", "/run/pg"}, getenvMap(nil))
	require.ErrorIs(t, err, ErrNoDataDirectory)
}

func TestArchiveDirIsSiblingOfDataDir(t *testing.T) {
	require.Equal(t, "/var/lib/pg/backup", ArchiveDir("/var/lib/pg/data"))
}
