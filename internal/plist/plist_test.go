package plist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixture = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>com.example.postgres</string>
	<key>ProgramArguments</key>
	<array>
		<string>-D</string>
		<string>/var/lib/postgres/data</string>
	</array>
</dict>
</plist>
`

func TestProgramArguments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.plist")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	args, err := ProgramArguments(path)
	require.NoError(t, err)
	require.Equal(t, []string{"-D", "/var/lib/postgres/data"}, args)
}

func TestProgramArgumentsMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.plist")
	require.NoError(t, os.WriteFile(path, []byte("<plist><dict><key>Label</key><string>x</string></dict></plist>"), 0o600))

	_, err := ProgramArguments(path)
	require.Error(t, err)
}
