package xlog

import (
	"bytes"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleFormatsTimestampPidMessage(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, false, true)
	l.Info("boot sequence starting", "step", 1)

	out := buf.String()
	require.Contains(t, out, "PGSUP."+strconv.Itoa(os.Getpid())+":  boot sequence starting")
	require.Contains(t, out, "step=1")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, false, false)
	l.Info("should be suppressed")
	require.Empty(t, buf.String())

	l.Warn("should appear")
	require.Contains(t, buf.String(), "should appear")
}
