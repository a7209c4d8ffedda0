package shutdownprobe

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckFalseOffDarwin(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("only exercises the non-darwin stub path")
	}
	require.False(t, Check(context.Background()))
}
