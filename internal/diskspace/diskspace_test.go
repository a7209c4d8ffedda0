package diskspace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeCapGBBoundaries(t *testing.T) {
	cases := []struct {
		totalGB uint64
		want    uint64
	}{
		{49, 5},
		{50, 10}, // strict < boundary: exactly 50 selects the next cap
		{99, 10},
		{100, 20},
		{199, 20},
		{200, 30},
		{1000, 30},
	}
	for _, c := range cases {
		require.Equal(t, c.want, SizeCapGB(c.totalGB), "totalGB=%d", c.totalGB)
	}
}

func TestStatRealPath(t *testing.T) {
	sp, err := Stat(t.TempDir())
	require.NoError(t, err)
	require.Greater(t, sp.TotalBytes, uint64(0))
}
