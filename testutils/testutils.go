package testutils

import (
	"context"
	"os"
	"testing"

	"github.com/elmanelman/sql-judge/dbconn"
	"github.com/stretchr/testify/require"
)

// MySQLConnStr returns the MYSQL_URL override, skipping the test when it is
// not set.
func MySQLConnStr(t *testing.T) string {
	u, ok := os.LookupEnv("MYSQL_URL")
	if !ok {
		t.Skip("MYSQL_URL not set")
	}
	return u
}

// MySQLScratch connects to MYSQL_URL and returns a fresh scratch database
// on it, dropped at the end of the test. The test is skipped when MYSQL_URL
// is not set.
func MySQLScratch(t *testing.T) dbconn.Conn {
	ctx := context.Background()
	conn, err := dbconn.Connect(ctx, "judge", MySQLConnStr(t))
	require.NoError(t, err)
	name := dbconn.ScratchName("test_")
	scratch, err := conn.CreateScratch(ctx, name)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = scratch.Close(ctx)
		_ = conn.DropScratch(ctx, name)
		_ = conn.Close(ctx)
	})
	return scratch
}

// SQLiteConn returns a private in-memory SQLite database closed at the end
// of the test.
func SQLiteConn(t *testing.T) dbconn.Conn {
	ctx := context.Background()
	conn, err := dbconn.Connect(ctx, "judge", "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })
	return conn
}

// Exec runs setup statements, failing the test on the first error.
func Exec(t *testing.T, conn dbconn.Conn, stmts ...string) {
	for _, stmt := range stmts {
		_, err := conn.DB().ExecContext(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}
