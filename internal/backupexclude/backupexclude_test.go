package backupexclude

import (
	"context"
	"runtime"
	"testing"
)

func TestRegisterNoopOffDarwin(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("only exercises the non-darwin soft-no-op path")
	}
	// Must not panic or block; tmutil is never invoked outside darwin.
	Register(context.Background(), "/tmp/does-not-matter")
}
