// Package debug provides a test-synchronization primitive for the supervisor
// boot sequence: an end-to-end test can pin a stop point ("before-boot" or
// "after-boot") and block the process there until
// it has asserted on-disk state, instead of racing a sleep against the
// supervisor's own timers.
package debug

import (
	"fmt"
	"os"
)

// StopIf blocks indefinitely if the environment variable XPG_TEST_STOP
// equals label. It prints a marker line to stderr so a test harness can wait
// until the exact stop point is reached before asserting or sending signals.
func StopIf(label string) {
	if os.Getenv("XPG_TEST_STOP") != label {
		return
	}
	fmt.Fprintf(os.Stderr, "TEST_stop_point_%s\n", label)
	select {}
}
