package binpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePrefersEnvOverride(t *testing.T) {
	t.Setenv(EnvPgCtl, "/opt/pg/bin/pg_ctl")
	path, err := Resolve(EnvPgCtl, "pg_ctl")
	require.NoError(t, err)
	require.Equal(t, "/opt/pg/bin/pg_ctl", path)
}

func TestResolveFallsBackToLookPath(t *testing.T) {
	t.Setenv(EnvPgCtl, "")
	_, err := Resolve(EnvPgCtl, "sh")
	require.NoError(t, err)
}

func TestResolveErrorsWhenNotFound(t *testing.T) {
	t.Setenv(EnvPgCtl, "")
	_, err := Resolve(EnvPgCtl, "definitely-not-a-real-binary-xyz")
	require.Error(t, err)
}
