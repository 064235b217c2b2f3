package pgmcp_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rickchristie/govner/pgflock/client"
	"github.com/rs/zerolog"

	pgmcp "github.com/rickchristie/postgres-crud-mcp"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func acquireTestDB(t *testing.T) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Fatalf("Failed to acquire test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() pgmcp.Config {
	return pgmcp.Config{
		Pool: pgmcp.PoolConfig{MaxConns: 5},
		Query: pgmcp.QueryConfig{
			DefaultTimeoutSeconds:       30,
			ListTablesTimeoutSeconds:    10,
			DescribeTableTimeoutSeconds: 10,
			MaxResultLength:             100000,
		},
	}
}

// newTestInstance acquires a database, runs setupSQL on it directly and
// returns an engine bound to it.
func newTestInstance(t *testing.T, config pgmcp.Config, setupSQL string, opts ...pgmcp.Option) *pgmcp.PostgresMcp {
	t.Helper()
	connStr := acquireTestDB(t)
	ctx := context.Background()
	if setupSQL != "" {
		execSQL(t, connStr, setupSQL)
	}
	p, err := pgmcp.New(ctx, connStr, config, testLogger(), opts...)
	if err != nil {
		t.Fatalf("Failed to create PostgresMcp: %v", err)
	}
	t.Cleanup(func() { p.Close(ctx) })
	return p
}

// execSQL runs DDL/DML outside the engine, which only ever issues the
// statements it builds itself.
func execSQL(t *testing.T, connStr, sql string) {
	t.Helper()
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("setup connect failed: %v", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, sql); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

func hookScript(name string) string {
	return filepath.Join("testdata", "hooks", name)
}

const usersSetupSQL = `
CREATE TABLE users (
	id serial PRIMARY KEY,
	email text NOT NULL UNIQUE,
	name text,
	status text NOT NULL DEFAULT 'active',
	age integer,
	tags text[] NOT NULL DEFAULT '{}',
	profile jsonb NOT NULL DEFAULT '{}',
	created_at timestamptz NOT NULL DEFAULT now()
);
INSERT INTO users (email, name, status, age, tags, profile, created_at) VALUES
	('ada@example.com', 'Ada', 'active', 36, '{admin,dev}', '{"city": "London", "plan": "pro"}', now() - interval '1 hour'),
	('bob@example.com', 'Bob', 'inactive', 17, '{dev}', '{"city": "Paris"}', now() - interval '10 days'),
	('cy@example.com', 'Cy', 'active', 52, '{}', '{"city": "london"}', now() - interval '40 days'),
	('di@example.com', NULL, 'banned', NULL, '{ops}', '{}', now() - interval '2 days');
`
