package postgres

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestPrettyBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{500, "500 bytes"},
		{1024, "1.00 kB"},
		{1024*1024 + 512*1024, "1.50 MB"},
	}
	for _, c := range cases {
		got := PrettyBytes(c.in)
		require.Equal(t, c.want, got)
	}
}

func TestTerminateIdleBackends(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mock.ExpectQuery("SELECT pg_terminate_backend").WillReturnRows(pgxmock.NewRows([]string{"pg_terminate_backend"}))

	require.NoError(t, TerminateIdleBackends(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
