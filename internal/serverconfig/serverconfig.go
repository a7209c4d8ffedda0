// Package serverconfig derives the Server personality's boot configuration
// from argv and the environment: the data directory, socket directory,
// optional log directory, and the filtered argv to hand to the PostgreSQL
// binary itself.
package serverconfig

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/vbp1/pgsupervisor/internal/plist"
)

// ErrNoDataDirectory is returned when no data directory could be derived
// from argv, env, or an apple-configuration plist.
var ErrNoDataDirectory = errors.New("serverconfig: no data directory")

// Config is the derived Server boot configuration.
type Config struct {
	DataDir      string
	SocketDir    string
	LogDir       string
	PostgresArgv []string
}

// Parse derives a Config from argv (excluding the program name) and the
// process environment. PGDATA, if set, overrides any -D flag.
func Parse(argv []string, getenv func(string) string) (Config, error) {
	expanded, err := expandAppleConfiguration(argv)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	var filtered []string

	for i := 0; i < len(expanded); i++ {
		arg := expanded[i]
		switch {
		case arg == "-k" && i+1 < len(expanded):
			cfg.SocketDir = expanded[i+1]
			filtered = append(filtered, arg, expanded[i+1])
			i++
		case arg == "-D" && i+1 < len(expanded):
			cfg.DataDir = expanded[i+1]
			filtered = append(filtered, arg, expanded[i+1])
			i++
		case arg == "-c" && i+1 < len(expanded):
			kv := expanded[i+1]
			key, val, ok := strings.Cut(kv, "=")
			if ok {
				switch key {
				case "unix_socket_directory":
					cfg.SocketDir = val
				case "log_directory":
					cfg.LogDir = val
				}
			}
			filtered = append(filtered, arg, kv)
			i++
		default:
			filtered = append(filtered, arg)
		}
	}

	if v := getenv("PGDATA"); v != "" {
		cfg.DataDir = v
	}

	if cfg.DataDir == "" {
		return Config{}, ErrNoDataDirectory
	}

	cfg.PostgresArgv = filtered
	return cfg, nil
}

// expandAppleConfiguration replaces a "--apple-configuration <path>" pair
// with the ProgramArguments array read from the plist at path. The token
// itself does not propagate into the result.
func expandAppleConfiguration(argv []string) ([]string, error) {
	out := make([]string, 0, len(argv))
	for i := 0; i < len(argv); i++ {
		if argv[i] == "--apple-configuration" && i+1 < len(argv) {
			extra, err := plist.ProgramArguments(argv[i+1])
			if err != nil {
				return nil, err
			}
			out = append(out, extra...)
			i++
			continue
		}
		out = append(out, argv[i])
	}
	return out, nil
}

// SocketPath is the listen path for the control-plane RPC socket.
func (c Config) SocketPath() string { return c.SocketDir + "/.xpg.skt" }

// SocketLockPath is the path of the control-socket inheritable lock.
func (c Config) SocketLockPath() string { return c.SocketDir + "/.xpg.skt.lock" }

// ArchiveDir is the WAL/base-backup archive directory, a sibling of the
// data directory named "backup".
func ArchiveDir(dataDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(dataDir)), "backup")
}
