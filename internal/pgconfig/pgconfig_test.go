package pgconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePostgresConf = `# sample config
#archive_mode = off
#archive_timeout = 0   # seconds
#max_wal_senders = 0
#wal_level = minimal
#archive_command = ''
shared_buffers = 128MB
`

const sampleHbaConf = `# TYPE  DATABASE  USER  ADDRESS  METHOD
local   all       all            trust
`

func TestEnableUncommentsAllFive(t *testing.T) {
	pg, hba := Enable(samplePostgresConf, sampleHbaConf, "/usr/local/bin/pgsupervisor")

	require.True(t, IsWalArchivingEnabled(pg))
	require.Contains(t, pg, "archive_mode = on")
	require.Contains(t, pg, "archive_timeout = 0   # seconds")
	require.Contains(t, pg, "max_wal_senders = 2")
	require.Contains(t, pg, "wal_level = hot_standby")
	require.Contains(t, pg, "archive_command = '/usr/local/bin/pgsupervisor archive %p ../backup/%f'")
	require.Contains(t, hba, "local   replication     all")
}

func TestEnableIsIdempotentOnHbaReplicationLine(t *testing.T) {
	_, hba := Enable(samplePostgresConf, sampleHbaConf, "/bin/x")
	_, hba2 := Enable(samplePostgresConf, hba, "/bin/x")
	require.Equal(t, hba, hba2, "replication line must not be duplicated on repeated enable")
}

func TestEnableDisableEnableRoundTrip(t *testing.T) {
	enabled, _ := Enable(samplePostgresConf, sampleHbaConf, "/bin/x")
	disabled := Disable(enabled)
	reEnabled, _ := Enable(disabled, sampleHbaConf, "/bin/x")
	require.Equal(t, enabled, reEnabled, "enable . disable . enable must equal the first enable")
}

func TestIsWalArchivingEnabledFalseWhenAnyCommented(t *testing.T) {
	require.False(t, IsWalArchivingEnabled(samplePostgresConf))
}

func TestConnectionRestrictionRoundTrip(t *testing.T) {
	restricted := EnableConnectionRestriction(sampleHbaConf)
	require.Contains(t, restricted, "# UPDATED BY pgsupervisor")

	restored := DisableConnectionRestriction(restricted)
	require.Equal(t, sampleHbaConf, restored)
}

func TestConnectionRestrictionSkipsReplicationLines(t *testing.T) {
	const hba = "local   replication     all                                      trust\n" +
		"local   all             all                                       trust\n"
	restricted := EnableConnectionRestriction(hba)
	require.NotContains(t, restricted, "#local   replication")
	require.Contains(t, restricted, "#local   all")
}
