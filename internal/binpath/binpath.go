// Package binpath resolves the absolute paths of the vendor binaries the
// supervisor shells out to (PostgreSQL itself, psql, pg_receivewal,
// pg_basebackup, pg_ctl), each overridable by an environment variable so
// tests can point at fixtures instead of a real PostgreSQL installation.
package binpath

import (
	"fmt"
	"os"
	"os/exec"
)

// Env vars recognized as binary-path overrides, per the external interface.
const (
	EnvPostgres   = "XPG_POSTGRES"
	EnvPsql       = "XPG_PSQL"
	EnvReceiveWAL = "XPG_RECEIVEXLOG"
	EnvPgCtl      = "XPG_PG_CTL"
	EnvBaseBackup = "XPG_PG_BASEBACKUP"
)

// Resolve returns, in order: the value of envVar if set and non-empty, else
// the result of exec.LookPath(defaultName) on $PATH.
func Resolve(envVar, defaultName string) (string, error) {
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	path, err := exec.LookPath(defaultName)
	if err != nil {
		return "", fmt.Errorf("binpath: resolve %s (override %s): %w", defaultName, envVar, err)
	}
	return path, nil
}
