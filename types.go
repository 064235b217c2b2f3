package pgmcp

import "github.com/rickchristie/postgres-crud-mcp/querybuild"

// Filters are accepted in several shapes. A map[string]any (as decoded from
// an MCP call) is normalized with sorted keys; a JSON string, []byte or
// json.RawMessage keeps document key order; a filter.Node is used as is.

// OrderInput is one ORDER BY term.
type OrderInput struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
	Nulls      string `json:"nulls,omitempty"` // "first" or "last"
}

// SelectInput is the input for the select_records tool. A nil Limit applies
// query.default_limit; any limit is capped at query.max_limit.
type SelectInput struct {
	Schema  string       `json:"schema,omitempty"`
	Table   string       `json:"table"`
	Filter  any          `json:"filter,omitempty"`
	Columns []string     `json:"columns,omitempty"`
	OrderBy []OrderInput `json:"order_by,omitempty"`
	Limit   *int         `json:"limit,omitempty"`
	Offset  *int         `json:"offset,omitempty"`
	DryRun  bool         `json:"dry_run,omitempty"`
}

// CountInput is the input for the count_records tool.
type CountInput struct {
	Schema string `json:"schema,omitempty"`
	Table  string `json:"table"`
	Filter any    `json:"filter,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// InsertInput is the input for the insert_records tool.
type InsertInput struct {
	Schema    string           `json:"schema,omitempty"`
	Table     string           `json:"table"`
	Records   []map[string]any `json:"records"`
	Returning []string         `json:"returning,omitempty"`
	DryRun    bool             `json:"dry_run,omitempty"`
}

// UpdateInput is the input for the update_records tool. When Set carries the
// primary key, only that row is updated.
type UpdateInput struct {
	Schema            string         `json:"schema,omitempty"`
	Table             string         `json:"table"`
	Set               map[string]any `json:"set"`
	PrimaryKey        string         `json:"primary_key,omitempty"`
	Filter            any            `json:"filter,omitempty"`
	ConfirmUnfiltered bool           `json:"confirm_unfiltered,omitempty"`
	Returning         []string       `json:"returning,omitempty"`
	DryRun            bool           `json:"dry_run,omitempty"`
}

// DeleteInput is the input for the delete_records tool.
type DeleteInput struct {
	Schema            string   `json:"schema,omitempty"`
	Table             string   `json:"table"`
	Filter            any      `json:"filter,omitempty"`
	ConfirmUnfiltered bool     `json:"confirm_unfiltered,omitempty"`
	Returning         []string `json:"returning,omitempty"`
	DryRun            bool     `json:"dry_run,omitempty"`
}

// RecordsOutput is the output of the select, insert, update and delete tools.
// All errors (validation, security, hook rejections, Postgres errors) are
// placed in Error, followed by any matching error prompts. For dry runs only
// Statement is set.
type RecordsOutput struct {
	Columns      []string                 `json:"columns,omitempty"`
	Rows         []map[string]interface{} `json:"rows"`
	RowCount     int                      `json:"row_count"`
	RowsAffected int64                    `json:"rows_affected,omitempty"`
	Statement    *querybuild.Statement    `json:"statement,omitempty"`
	// Notice is informational. It is set when a committed write's RETURNING
	// rows were too long to show.
	Notice       string                   `json:"notice,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// CountOutput is the output of the count_records tool.
type CountOutput struct {
	Count     int64                 `json:"count"`
	Statement *querybuild.Statement `json:"statement,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// ListTablesInput is the input for the ListTables tool. Schema optionally
// restricts the listing.
type ListTablesInput struct {
	Schema string `json:"schema,omitempty"`
}

// TableEntry represents a single table or view in the ListTables output.
// Writable is false for views and materialized views.
type TableEntry struct {
	Schema              string `json:"schema" db:"schema"`
	Name                string `json:"name" db:"name"`
	Type                string `json:"type" db:"type"`
	Owner               string `json:"owner" db:"owner"`
	Writable            bool   `json:"writable" db:"writable"`
	EstimatedRows       int64  `json:"estimated_rows" db:"estimated_rows"`
	SchemaAccessLimited bool   `json:"schema_access_limited,omitempty" db:"schema_access_limited"`
}

// ListTablesOutput is the output of the ListTables tool.
type ListTablesOutput struct {
	Tables []TableEntry `json:"tables"`
	Error  string       `json:"error,omitempty"`
}

// DescribeTableInput is the input for the DescribeTable tool.
type DescribeTableInput struct {
	Table  string `json:"table"`
	Schema string `json:"schema"`
}

// ColumnInfo describes a single column. Generated and identity-always
// columns cannot be written by insert_records or update_records.
type ColumnInfo struct {
	Name         string `json:"name" db:"name"`
	Type         string `json:"type" db:"type"`
	Nullable     bool   `json:"nullable" db:"nullable"`
	Default      string `json:"default,omitempty" db:"default_val"`
	IsPrimaryKey bool   `json:"is_primary_key" db:"is_primary_key"`
	IsGenerated  bool   `json:"is_generated,omitempty" db:"is_generated"`
	Filterable   string `json:"filterable" db:"-"` // operator family usable in filters
}

// IndexInfo describes a single index.
type IndexInfo struct {
	Name       string `json:"name" db:"name"`
	Definition string `json:"definition" db:"definition"`
	IsUnique   bool   `json:"is_unique" db:"is_unique"`
	IsPrimary  bool   `json:"is_primary" db:"is_primary"`
}

// ConstraintInfo describes a single constraint.
type ConstraintInfo struct {
	Name       string `json:"name" db:"name"`
	Type       string `json:"type" db:"type"` // PRIMARY KEY, FOREIGN KEY, UNIQUE, CHECK, EXCLUSION
	Definition string `json:"definition" db:"definition"`
}

// DescribeTableOutput is the output of the DescribeTable tool.
type DescribeTableOutput struct {
	Schema      string           `json:"schema"`
	Name        string           `json:"name"`
	Type        string           `json:"type"` // see TableEntry.Type
	Writable    bool             `json:"writable"`
	PrimaryKey  []string         `json:"primary_key"`
	Columns     []ColumnInfo     `json:"columns"`
	Indexes     []IndexInfo      `json:"indexes"`
	Constraints []ConstraintInfo `json:"constraints"`
	Error       string           `json:"error,omitempty"`
}
