package pgmcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const detectTypeSQL = `
SELECT c.relkind::text
FROM pg_catalog.pg_class c
WHERE c.oid = to_regclass($1);
`

const columnsSQL = `
SELECT
    a.attname AS name,
    pg_catalog.format_type(a.atttypid, a.atttypmod) AS type,
    NOT a.attnotnull AS nullable,
    COALESCE(pg_catalog.pg_get_expr(d.adbin, d.adrelid), '') AS default_val,
    COALESCE(a.attnum = ANY(pk.conkey), false) AS is_primary_key,
    (a.attgenerated <> '' OR a.attidentity = 'a') AS is_generated
FROM pg_catalog.pg_attribute a
LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
LEFT JOIN pg_catalog.pg_constraint pk ON pk.conrelid = a.attrelid AND pk.contype = 'p'
WHERE a.attrelid = $1::regclass
  AND a.attnum > 0
  AND NOT a.attisdropped
ORDER BY a.attnum;
`

const indexesSQL = `
SELECT
    c.relname AS name,
    pg_catalog.pg_get_indexdef(i.indexrelid) AS definition,
    i.indisunique AS is_unique,
    i.indisprimary AS is_primary
FROM pg_catalog.pg_index i
JOIN pg_catalog.pg_class c ON c.oid = i.indexrelid
WHERE i.indrelid = $1::regclass
ORDER BY c.relname;
`

const constraintsSQL = `
SELECT
    con.conname AS name,
    CASE con.contype
        WHEN 'p' THEN 'PRIMARY KEY'
        WHEN 'f' THEN 'FOREIGN KEY'
        WHEN 'u' THEN 'UNIQUE'
        WHEN 'c' THEN 'CHECK'
        WHEN 'x' THEN 'EXCLUSION'
        ELSE con.contype::text
    END AS type,
    pg_catalog.pg_get_constraintdef(con.oid, true) AS definition
FROM pg_catalog.pg_constraint con
WHERE con.conrelid = $1::regclass
ORDER BY con.conname;
`

var relkindNames = map[string]string{
	"r": "table",
	"v": "view",
	"m": "materialized_view",
	"f": "foreign_table",
	"p": "partitioned_table",
}

// DescribeTable returns the columns, keys, indexes and constraints of a table
// or view, plus the filter operator family of each column.
// Does NOT go through the statement pipeline.
func (p *PostgresMcp) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	startTime := time.Now()

	if input.Table == "" {
		return nil, errors.New("table is required")
	}
	schema := input.Schema
	if schema == "" {
		schema = "public"
	}
	if !p.schemaAllowed(schema) {
		return nil, fmt.Errorf("schema %q is not in protection.allowed_schemas", schema)
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("DescribeTable: %w", err)
	}
	defer release()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Query.DescribeTableTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := p.pool.Acquire(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // metadata only, never committed

	qualName := pgx.Identifier{schema, input.Table}.Sanitize()

	var relkind string
	if err := tx.QueryRow(queryCtx, detectTypeSQL, qualName).Scan(&relkind); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("table not found: %s.%s", schema, input.Table)
		}
		return nil, fmt.Errorf("failed to look up %s.%s: %w", schema, input.Table, err)
	}

	output := &DescribeTableOutput{
		Schema:     schema,
		Name:       input.Table,
		Type:       relkindNames[relkind],
		Writable:   relkind == "r" || relkind == "p" || relkind == "f",
		PrimaryKey: []string{},
	}
	if output.Type == "" {
		output.Type = "unknown"
	}

	output.Columns, err = collect[ColumnInfo](queryCtx, tx, columnsSQL, qualName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch columns: %w", err)
	}
	for i := range output.Columns {
		col := &output.Columns[i]
		col.Filterable = operatorFamily(col.Type)
		if col.IsPrimaryKey {
			output.PrimaryKey = append(output.PrimaryKey, col.Name)
		}
	}

	output.Indexes, err = collect[IndexInfo](queryCtx, tx, indexesSQL, qualName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch indexes: %w", err)
	}
	output.Constraints, err = collect[ConstraintInfo](queryCtx, tx, constraintsSQL, qualName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch constraints: %w", err)
	}

	p.logger.Info().
		Str("schema", schema).
		Str("table", input.Table).
		Dur("duration", time.Since(startTime)).
		Str("type", output.Type).
		Int("column_count", len(output.Columns)).
		Msg("DescribeTable executed")

	return output, nil
}

func collect[T any](ctx context.Context, tx pgx.Tx, sql string, args ...any) ([]T, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// operatorFamily names the filter operators that make sense for a column of
// the given formatted type.
func operatorFamily(typ string) string {
	t := strings.ToLower(typ)
	switch {
	case strings.HasSuffix(t, "[]"):
		return "array"
	case t == "jsonb":
		return "jsonb"
	case t == "json":
		return "json"
	case t == "point" || t == "box" || t == "polygon" || t == "circle" || t == "lseg" || t == "path":
		return "geometric"
	case t == "date" || strings.HasPrefix(t, "timestamp"):
		return "temporal"
	case t == "text" || t == "citext" || t == "name" || strings.HasPrefix(t, "character") || strings.HasPrefix(t, "varchar"):
		return "text"
	case t == "boolean":
		return "boolean"
	case t == "smallint" || t == "integer" || t == "bigint" || t == "real" || t == "double precision" ||
		strings.HasPrefix(t, "numeric"):
		return "numeric"
	default:
		return "scalar"
	}
}
