// Package postgres holds the small set of ad hoc SQL operations the
// supervisor issues against the PostgreSQL instance it manages. Unlike a
// long-running application, the supervisor never needs a pool: at most one
// transient connection is open at a time, opened immediately before a query
// and closed right after.
package postgres

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
)

// Connect opens a single ad hoc connection. If dsn is empty it is built from
// libpq-compatible environment variables (PGHOST, PGPORT, PGUSER, PGDATABASE),
// matching how the server it supervises resolves its own connection info.
func Connect(ctx context.Context, dsn string) (*pgx.Conn, error) {
	if dsn == "" {
		host := os.Getenv("PGHOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("PGPORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("PGUSER")
		if user == "" {
			user = os.Getenv("USER")
		}
		dbname := os.Getenv("PGDATABASE")
		if dbname == "" {
			dbname = "postgres"
		}
		dsn = fmt.Sprintf("postgres://%s@%s:%s/%s", user, host, port, dbname)
	}
	return pgx.Connect(ctx, dsn)
}

// queryer is the subset of *pgx.Conn that TerminateIdleBackends needs,
// narrow enough that pgxmock can stand in for it in tests.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TerminateIdleBackends signals every other backend with no active query to
// disconnect, so that a graceful PostgreSQL shutdown is not held up by idle
// client connections. It is issued once, right before SIGTERM is sent to the
// PostgreSQL child, and is skipped entirely while a restore is in progress
// (client traffic is already impossible then).
func TerminateIdleBackends(ctx context.Context, q queryer) error {
	const query = `SELECT pg_terminate_backend(pid)
	                 FROM pg_stat_activity
	                WHERE pid <> pg_backend_pid()
	                  AND state = 'idle'`
	rows, err := q.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("terminate idle backends: %w", err)
	}
	rows.Close()
	return rows.Err()
}

// PrettyBytes renders b using IEC units, used in log lines reporting archive
// size and free space.
func PrettyBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d bytes", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(b) / float64(div)
	suffix := []string{"kB", "MB", "GB", "TB", "PB", "EB"}[exp]
	return fmt.Sprintf("%.2f %s", value, suffix)
}
