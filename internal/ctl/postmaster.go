package ctl

import (
	"bufio"
	"fmt"
	"os"
)

// socketDirFromPostmasterPid reads line 5 (1-indexed) of PostgreSQL's
// postmaster.pid file, which holds the socket directory the running
// instance is bound to.
func socketDirFromPostmasterPid(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ctl: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		if line == 5 {
			return scanner.Text(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("ctl: read %s: %w", path, err)
	}
	return "", fmt.Errorf("ctl: %s has fewer than 5 lines", path)
}
