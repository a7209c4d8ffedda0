// Package pgconfig performs the idempotent, comment-aware rewriting of
// postgresql.conf and pg_hba.conf that toggles WAL archiving on and off.
// Every rewrite operates on whole-file content (read, transform, write) one
// line at a time, preserving trailing comment text on the touched lines.
package pgconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	archiveTimeoutValue  = "0"
	maxWalSendersValue   = "2"
	walLevelEnabled      = "hot_standby"
	walLevelDisabled     = "minimal"
	hbaReplicationLine   = "local   replication     all                                      trust"
	connRestrictedMarker = "# UPDATED BY pgsupervisor"
)

var (
	reArchiveModeOff    = regexp.MustCompile(`^\s*#archive_mode\s*=\s*\S*(.*)$`)
	reArchiveTimeoutOff = regexp.MustCompile(`^\s*#archive_timeout\s*=\s*\d+(.*)$`)
	reMaxWalSendersOff  = regexp.MustCompile(`^\s*#max_wal_senders\s*=\s*\d+(.*)$`)
	reWalLevelOff       = regexp.MustCompile(`^\s*#wal_level\s*=\s*\S*(.*)$`)
	reArchiveCommandOff = regexp.MustCompile(`^\s*#archive_command\s*=\s*['"].*['"](.*)$`)

	reArchiveModeOn    = regexp.MustCompile(`^\s*archive_mode\s*=\s*\S*(.*)$`)
	reArchiveTimeoutOn = regexp.MustCompile(`^\s*archive_timeout\s*=\s*\d+(.*)$`)
	reMaxWalSendersOn  = regexp.MustCompile(`^\s*max_wal_senders\s*=\s*\d+(.*)$`)
	reWalLevelOn       = regexp.MustCompile(`^\s*wal_level\s*=\s*\S*(.*)$`)
	reArchiveCommandOn = regexp.MustCompile(`^\s*archive_command\s*=\s*['"].*['"](.*)$`)

	reHbaFields  = regexp.MustCompile(`^(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s*(\S*)$`)
	reRestricted = regexp.MustCompile(`^#(\s*.+)\s*` + regexp.QuoteMeta(connRestrictedMarker) + `$`)

	enablePatterns = []*regexp.Regexp{
		reArchiveModeOff, reArchiveCommandOff, reMaxWalSendersOff, reWalLevelOff, reArchiveTimeoutOff,
	}
)

// ArchiveCommand builds the literal archive_command value for binaryPath,
// the absolute path of this supervisor binary.
func ArchiveCommand(binaryPath string) string {
	return fmt.Sprintf("'%s archive %%p ../backup/%%f'", binaryPath)
}

// Enable rewrites postgresql.conf content to turn on WAL archiving, and
// pg_hba.conf content to grant local replication access, using binaryPath as
// the archive_command target. Returns the new contents of both files.
func Enable(postgresConf, hbaConf, binaryPath string) (string, string) {
	archiveCommand := ArchiveCommand(binaryPath)
	lines := splitLines(postgresConf)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		switch {
		case reArchiveModeOff.MatchString(line):
			out = append(out, "archive_mode = on"+submatch(reArchiveModeOff, line))
		case reArchiveTimeoutOff.MatchString(line):
			out = append(out, "archive_timeout = "+archiveTimeoutValue+submatch(reArchiveTimeoutOff, line))
		case reMaxWalSendersOff.MatchString(line):
			out = append(out, "max_wal_senders = "+maxWalSendersValue+submatch(reMaxWalSendersOff, line))
		case reWalLevelOff.MatchString(line):
			out = append(out, "wal_level = "+walLevelEnabled+submatch(reWalLevelOff, line))
		case reArchiveCommandOff.MatchString(line):
			out = append(out, "archive_command = "+archiveCommand+submatch(reArchiveCommandOff, line))
		default:
			out = append(out, line)
		}
	}

	return joinLines(out), enableReplication(hbaConf)
}

func enableReplication(hbaConf string) string {
	lines := splitLines(hbaConf)
	replicationEnabled := false
	for _, line := range lines {
		if m := reHbaFields.FindStringSubmatch(line); m != nil {
			typ, db, user := m[1], m[2], m[3]
			method := m[4]
			if m[5] != "" {
				method = m[5]
			}
			if typ == "local" && db == "replication" && m[5] == "" && user == "all" && method == "trust" {
				replicationEnabled = true
			}
		}
	}
	if replicationEnabled {
		return joinLines(lines)
	}
	return joinLines(append(lines, hbaReplicationLine))
}

// Disable reverses Enable's five postgresql.conf substitutions, used before
// spawning PostgreSQL in restore mode.
func Disable(postgresConf string) string {
	lines := splitLines(postgresConf)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		switch {
		case reArchiveModeOn.MatchString(line):
			out = append(out, "#archive_mode = off"+submatch(reArchiveModeOn, line))
		case reArchiveTimeoutOn.MatchString(line):
			out = append(out, "#archive_timeout = 0"+submatch(reArchiveTimeoutOn, line))
		case reMaxWalSendersOn.MatchString(line):
			out = append(out, "#max_wal_senders = 0"+submatch(reMaxWalSendersOn, line))
		case reWalLevelOn.MatchString(line):
			out = append(out, "#wal_level = "+walLevelDisabled+submatch(reWalLevelOn, line))
		case reArchiveCommandOn.MatchString(line):
			out = append(out, "#archive_command = ''"+submatch(reArchiveCommandOn, line))
		default:
			out = append(out, line)
		}
	}
	return joinLines(out)
}

// IsWalArchivingEnabled reports true iff none of the five commented-pattern
// lines are present: every setting has been uncommented.
func IsWalArchivingEnabled(postgresConf string) bool {
	for _, line := range splitLines(postgresConf) {
		for _, p := range enablePatterns {
			if p.MatchString(line) {
				return false
			}
		}
	}
	return true
}

// EnableConnectionRestriction comments out every non-replication pg_hba.conf
// line, tagging it with the marker so DisableConnectionRestriction can find
// and revert it later.
func EnableConnectionRestriction(hbaConf string) string {
	lines := splitLines(hbaConf)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			out = append(out, line)
			continue
		}
		if m := reHbaFields.FindStringSubmatch(line); m != nil {
			if m[2] == "replication" {
				out = append(out, line)
				continue
			}
			out = append(out, "#"+line+"    "+connRestrictedMarker)
			continue
		}
		out = append(out, line)
	}
	return joinLines(out)
}

// DisableConnectionRestriction reverts EnableConnectionRestriction's marker
// lines back to their original, uncommented form.
func DisableConnectionRestriction(hbaConf string) string {
	lines := splitLines(hbaConf)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if m := reRestricted.FindStringSubmatch(line); m != nil {
			out = append(out, strings.TrimRight(m[1], " "))
			continue
		}
		out = append(out, line)
	}
	return joinLines(out)
}

func submatch(re *regexp.Regexp, line string) string {
	m := re.FindStringSubmatch(line)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// EnableFiles reads, rewrites, and writes postgresql.conf and pg_hba.conf
// under dataDir in place.
func EnableFiles(dataDir, binaryPath string) error {
	pgPath := filepath.Join(dataDir, "postgresql.conf")
	hbaPath := filepath.Join(dataDir, "pg_hba.conf")

	pgConf, err := os.ReadFile(pgPath)
	if err != nil {
		return fmt.Errorf("pgconfig: read %s: %w", pgPath, err)
	}
	hbaConf, err := os.ReadFile(hbaPath)
	if err != nil {
		return fmt.Errorf("pgconfig: read %s: %w", hbaPath, err)
	}

	newPg, newHba := Enable(string(pgConf), string(hbaConf), binaryPath)

	if err := os.WriteFile(pgPath, []byte(newPg), 0o600); err != nil {
		return fmt.Errorf("pgconfig: write %s: %w", pgPath, err)
	}
	if err := os.WriteFile(hbaPath, []byte(newHba), 0o600); err != nil {
		return fmt.Errorf("pgconfig: write %s: %w", hbaPath, err)
	}
	return nil
}

// DisableFiles reads, rewrites, and writes postgresql.conf under dataDir in
// place, reverting archiving settings.
func DisableFiles(dataDir string) error {
	pgPath := filepath.Join(dataDir, "postgresql.conf")
	pgConf, err := os.ReadFile(pgPath)
	if err != nil {
		return fmt.Errorf("pgconfig: read %s: %w", pgPath, err)
	}
	newPg := Disable(string(pgConf))
	if err := os.WriteFile(pgPath, []byte(newPg), 0o600); err != nil {
		return fmt.Errorf("pgconfig: write %s: %w", pgPath, err)
	}
	return nil
}

// RestrictConnectionsFile reads, rewrites, and writes pg_hba.conf under
// dataDir in place via EnableConnectionRestriction, so that while PostgreSQL
// runs in restore mode only the private restore socket directory (not
// regular host/local clients) can connect.
func RestrictConnectionsFile(dataDir string) error {
	hbaPath := filepath.Join(dataDir, "pg_hba.conf")
	hbaConf, err := os.ReadFile(hbaPath)
	if err != nil {
		return fmt.Errorf("pgconfig: read %s: %w", hbaPath, err)
	}
	newHba := EnableConnectionRestriction(string(hbaConf))
	if err := os.WriteFile(hbaPath, []byte(newHba), 0o600); err != nil {
		return fmt.Errorf("pgconfig: write %s: %w", hbaPath, err)
	}
	return nil
}

// UnrestrictConnectionsFile reverts RestrictConnectionsFile via
// DisableConnectionRestriction, run once restore mode has finished and
// normal boot is about to spawn PostgreSQL for real client traffic.
func UnrestrictConnectionsFile(dataDir string) error {
	hbaPath := filepath.Join(dataDir, "pg_hba.conf")
	hbaConf, err := os.ReadFile(hbaPath)
	if err != nil {
		return fmt.Errorf("pgconfig: read %s: %w", hbaPath, err)
	}
	newHba := DisableConnectionRestriction(string(hbaConf))
	if err := os.WriteFile(hbaPath, []byte(newHba), 0o600); err != nil {
		return fmt.Errorf("pgconfig: write %s: %w", hbaPath, err)
	}
	return nil
}
