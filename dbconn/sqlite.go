package dbconn

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const memoryPath = ":memory:"

// SQLiteConn is an embedded backend. In-memory databases use a named shared
// cache so every pooled connection sees the same data; the pool is capped at
// a single connection since SQLite serializes writers anyway.
type SQLiteConn struct {
	id      ID
	connStr string
	db      *sqlx.DB
}

var _ Conn = (*SQLiteConn)(nil)

func ConnectSQLite(ctx context.Context, id ID, connStr string) (*SQLiteConn, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(connStr, "sqlite://"), "sqlite:")
	if path == memoryPath || path == "" {
		return openSQLite(id, connStr, memoryDSN(ScratchName("mem_")))
	}
	return openSQLite(id, connStr, "file:"+path+"?_busy_timeout=5000")
}

func memoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared"
}

func openSQLite(id ID, connStr string, dsn string) (*SQLiteConn, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteConn{id: id, connStr: connStr, db: db}, nil
}

func (c *SQLiteConn) ID() ID {
	return c.id
}

func (c *SQLiteConn) DB() *sqlx.DB {
	return c.db
}

func (c *SQLiteConn) Dialect() string {
	return "sqlite"
}

func (c *SQLiteConn) ConnStr() string {
	return c.connStr
}

func (c *SQLiteConn) Close(ctx context.Context) error {
	return c.db.Close()
}

// CreateScratch always creates an in-memory database; it disappears once
// the returned Conn is closed.
func (c *SQLiteConn) CreateScratch(ctx context.Context, name string) (Conn, error) {
	if err := checkScratchName(name); err != nil {
		return nil, err
	}
	ret, err := openSQLite(c.id+ID("/"+name), c.connStr, memoryDSN(name))
	if err != nil {
		return nil, err
	}
	if err := ret.db.PingContext(ctx); err != nil {
		_ = ret.Close(ctx)
		return nil, err
	}
	return ret, nil
}

func (c *SQLiteConn) DropScratch(ctx context.Context, name string) error {
	return checkScratchName(name)
}
