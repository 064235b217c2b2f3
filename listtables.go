package pgmcp

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const listTablesSQL = `
SELECT
    n.nspname AS schema,
    c.relname AS name,
    CASE c.relkind
        WHEN 'r' THEN 'table'
        WHEN 'v' THEN 'view'
        WHEN 'm' THEN 'materialized_view'
        WHEN 'f' THEN 'foreign_table'
        WHEN 'p' THEN 'partitioned_table'
    END AS type,
    pg_catalog.pg_get_userbyid(c.relowner) AS owner,
    (c.relkind IN ('r', 'p', 'f') AND has_table_privilege(c.oid, 'INSERT, UPDATE, DELETE')) AS writable,
    GREATEST(c.reltuples, 0)::bigint AS estimated_rows,
    NOT has_schema_privilege(n.oid, 'USAGE') AS schema_access_limited
FROM pg_catalog.pg_class c
LEFT JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND has_table_privilege(c.oid, 'SELECT')
  AND ($1::text = '' OR n.nspname = $1::text)
ORDER BY n.nspname, c.relname;
`

// ListTables returns the tables and views accessible to the current user,
// limited to protection.allowed_schemas when configured. Does NOT go through
// the statement pipeline.
func (p *PostgresMcp) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	if input.Schema != "" && !p.schemaAllowed(input.Schema) {
		return nil, fmt.Errorf("schema %q is not in protection.allowed_schemas", input.Schema)
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTables: %w", err)
	}
	defer release()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Query.ListTablesTimeoutSeconds)*time.Second)
	defer cancel()

	rows, err := p.pool.Query(queryCtx, listTablesSQL, input.Schema)
	if err != nil {
		return nil, fmt.Errorf("ListTables query failed: %w", err)
	}
	all, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[TableEntry])
	if err != nil {
		return nil, fmt.Errorf("ListTables scan failed: %w", err)
	}

	tables := make([]TableEntry, 0, len(all))
	for _, t := range all {
		if p.schemaAllowed(t.Schema) {
			tables = append(tables, t)
		}
	}

	p.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Tables: tables}, nil
}
