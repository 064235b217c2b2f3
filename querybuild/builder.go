// Package querybuild assembles SELECT, INSERT, UPDATE and DELETE statements
// from validated request structs and compiled filters.
//
// Every statement owns one filter.ParameterAllocator. Values are allocated in
// the order their placeholders appear in the SQL text: INSERT values row by
// row, UPDATE SET values before WHERE values.
package querybuild

import (
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/rickchristie/postgres-crud-mcp/filter"
)

// DefaultPrimaryKey is used by Update when no primary key is named.
const DefaultPrimaryKey = "id"

// Order is one ORDER BY term.
type Order struct {
	Field      string
	Descending bool
	// Nulls is "", "first" or "last".
	Nulls string
}

type SelectRequest struct {
	Schema  string
	Table   string
	Columns []string // empty selects *
	Filter  filter.Node
	OrderBy []Order
	Limit   *int // nil means no LIMIT
	Offset  *int
}

type CountRequest struct {
	Schema string
	Table  string
	Filter filter.Node
}

type InsertRequest struct {
	Schema    string
	Table     string
	Records   []map[string]any
	Returning []string
}

type UpdateRequest struct {
	Schema string
	Table  string
	Set    map[string]any
	// PrimaryKey is excluded from SET. When Set carries it, the update is
	// restricted to that row.
	PrimaryKey        string
	Filter            filter.Node
	ConfirmUnfiltered bool
	Returning         []string
}

type DeleteRequest struct {
	Schema            string
	Table             string
	Filter            filter.Node
	ConfirmUnfiltered bool
	Returning         []string
}

// Builder renders statements. It is safe for concurrent use.
type Builder struct {
	compiler *filter.Compiler
}

// New returns a Builder that compiles filters with compiler, or with a
// default compiler when compiler is nil.
func New(compiler *filter.Compiler) *Builder {
	if compiler == nil {
		compiler = filter.NewCompiler()
	}
	return &Builder{compiler: compiler}
}

func (b *Builder) Select(req SelectRequest) (*Statement, error) {
	table, err := tableRef(req.Schema, req.Table)
	if err != nil {
		return nil, err
	}
	cols, err := columnList("columns", req.Columns)
	if err != nil {
		return nil, err
	}
	orders, err := orderTerms(req.OrderBy)
	if err != nil {
		return nil, err
	}
	limit, err := nonNegative("limit", req.Limit)
	if err != nil {
		return nil, err
	}
	offset, err := nonNegative("offset", req.Offset)
	if err != nil {
		return nil, err
	}

	alloc := filter.NewParameterAllocator()
	where, err := b.compiler.Compile(req.Filter, alloc)
	if err != nil {
		return nil, err
	}

	q := sq.Select(cols...).From(table).PlaceholderFormat(sq.Question)
	if !where.IsEmpty() {
		q = q.Where(sq.Expr(where.SQL))
	}
	if len(orders) > 0 {
		q = q.OrderBy(orders...)
	}
	if limit != nil {
		q = q.Limit(*limit)
	}
	if offset != nil {
		q = q.Offset(*offset)
	}
	return render(q, CommandSelect, req.Schema, req.Table, alloc, false)
}

// Count renders SELECT count(*) with the request's filter.
func (b *Builder) Count(req CountRequest) (*Statement, error) {
	table, err := tableRef(req.Schema, req.Table)
	if err != nil {
		return nil, err
	}
	alloc := filter.NewParameterAllocator()
	where, err := b.compiler.Compile(req.Filter, alloc)
	if err != nil {
		return nil, err
	}
	q := sq.Select("count(*)").From(table).PlaceholderFormat(sq.Question)
	if !where.IsEmpty() {
		q = q.Where(sq.Expr(where.SQL))
	}
	return render(q, CommandSelect, req.Schema, req.Table, alloc, false)
}

// Insert renders a single- or multi-row INSERT. The column list is the sorted
// union of all record keys; a record lacking a column gets DEFAULT.
func (b *Builder) Insert(req InsertRequest) (*Statement, error) {
	table, err := tableRef(req.Schema, req.Table)
	if err != nil {
		return nil, err
	}
	if len(req.Records) == 0 {
		return nil, filter.Validationf("records", "insert requires at least one record")
	}
	seen := map[string]bool{}
	var keys []string
	for _, rec := range req.Records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	if len(keys) == 0 {
		return nil, filter.Validationf("records", "insert requires at least one column")
	}
	sort.Strings(keys)
	cols, err := columnList("records", keys)
	if err != nil {
		return nil, err
	}
	returning, err := returningClause(req.Returning)
	if err != nil {
		return nil, err
	}

	alloc := filter.NewParameterAllocator()
	q := sq.Insert(table).Columns(cols...).PlaceholderFormat(sq.Question)
	for _, rec := range req.Records {
		row := make([]any, len(keys))
		for i, k := range keys {
			if v, ok := rec[k]; ok {
				row[i] = sq.Expr(alloc.Placeholder(v))
			} else {
				row[i] = sq.Expr("DEFAULT")
			}
		}
		q = q.Values(row...)
	}
	if returning != "" {
		q = q.Suffix(returning)
	}
	return render(q, CommandInsert, req.Schema, req.Table, alloc, false)
}

func (b *Builder) Update(req UpdateRequest) (*Statement, error) {
	table, err := tableRef(req.Schema, req.Table)
	if err != nil {
		return nil, err
	}
	pk := req.PrimaryKey
	if pk == "" {
		pk = DefaultPrimaryKey
	}
	if err := filter.ValidateIdentifier(pk); err != nil {
		return nil, filter.Securityf("primary_key", "unsafe primary key %q", pk)
	}

	var keys []string
	for k := range req.Set {
		if k != pk {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, filter.Validationf("set", "update requires at least one column other than the primary key %q", pk)
	}
	sort.Strings(keys)
	cols, err := columnList("set", keys)
	if err != nil {
		return nil, err
	}
	returning, err := returningClause(req.Returning)
	if err != nil {
		return nil, err
	}

	alloc := filter.NewParameterAllocator()
	q := sq.Update(table).PlaceholderFormat(sq.Question)
	for i, k := range keys {
		q = q.Set(cols[i], sq.Expr(alloc.Placeholder(req.Set[k])))
	}

	// The primary key predicate is compiled on its own so that the caller's
	// filter keeps its full depth and condition limits.
	var clauses []string
	if pkValue, ok := req.Set[pk]; ok {
		path, err := filter.ParsePath(pk)
		if err != nil {
			return nil, err
		}
		pkWhere, err := b.compiler.Compile(&filter.FieldCondition{Field: path, Operator: filter.OpEq, Value: pkValue}, alloc)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, pkWhere.SQL)
	}
	where, err := b.compiler.Compile(req.Filter, alloc)
	if err != nil {
		return nil, err
	}
	if !where.IsEmpty() {
		clauses = append(clauses, where.SQL)
	}

	switch len(clauses) {
	case 0:
		if !req.ConfirmUnfiltered {
			return nil, unfilteredError(CommandUpdate, req.Table)
		}
	case 1:
		q = q.Where(sq.Expr(clauses[0]))
	default:
		q = q.Where(sq.Expr("(" + strings.Join(clauses, " AND ") + ")"))
	}
	if returning != "" {
		q = q.Suffix(returning)
	}
	return render(q, CommandUpdate, req.Schema, req.Table, alloc, len(clauses) == 0)
}

func (b *Builder) Delete(req DeleteRequest) (*Statement, error) {
	table, err := tableRef(req.Schema, req.Table)
	if err != nil {
		return nil, err
	}
	returning, err := returningClause(req.Returning)
	if err != nil {
		return nil, err
	}
	alloc := filter.NewParameterAllocator()
	where, err := b.compiler.Compile(req.Filter, alloc)
	if err != nil {
		return nil, err
	}
	if where.IsEmpty() && !req.ConfirmUnfiltered {
		return nil, unfilteredError(CommandDelete, req.Table)
	}
	q := sq.Delete(table).PlaceholderFormat(sq.Question)
	if !where.IsEmpty() {
		q = q.Where(sq.Expr(where.SQL))
	}
	if returning != "" {
		q = q.Suffix(returning)
	}
	return render(q, CommandDelete, req.Schema, req.Table, alloc, where.IsEmpty())
}

func render(q sq.Sqlizer, cmd Command, schema, table string, alloc *filter.ParameterAllocator, unfiltered bool) (*Statement, error) {
	text, _, err := q.ToSql()
	if err != nil {
		return nil, filter.Validationf("", "render %s: %v", strings.ToLower(string(cmd)), err)
	}
	return &Statement{
		command:    cmd,
		schema:     schema,
		table:      table,
		sql:        text,
		params:     alloc.Parameters(),
		unfiltered: unfiltered,
	}, nil
}

func unfilteredError(cmd Command, table string) error {
	return filter.Validationf("filter", "refusing to %s %s without a WHERE clause; set confirm_unfiltered to proceed", cmd, table)
}

// tableRef validates and renders the target table. Without a schema the
// table may itself be qualified as "schema.table".
func tableRef(schema, table string) (string, error) {
	if table == "" {
		return "", filter.Validationf("table", "table is required")
	}
	if schema == "" {
		if err := filter.ValidateIdentifier(table); err != nil || strings.Count(table, ".") > 1 {
			return "", filter.Securityf("table", "unsafe table name %q", table)
		}
		return filter.QuoteIdentifier(table), nil
	}
	if err := filter.ValidateIdentifier(schema); err != nil || strings.Contains(schema, ".") {
		return "", filter.Securityf("schema", "unsafe schema name %q", schema)
	}
	if err := filter.ValidateIdentifier(table); err != nil || strings.Contains(table, ".") {
		return "", filter.Securityf("table", "unsafe table name %q", table)
	}
	return filter.QuoteIdentifier(schema) + "." + filter.QuoteIdentifier(table), nil
}

// columnList validates column names. An empty list projects *.
func columnList(at string, columns []string) ([]string, error) {
	if len(columns) == 0 {
		return []string{"*"}, nil
	}
	out := make([]string, len(columns))
	for i, c := range columns {
		if c == "*" && at == "columns" && len(columns) == 1 {
			out[i] = c
			continue
		}
		if err := filter.ValidateIdentifier(c); err != nil {
			return nil, filter.Securityf(at, "unsafe column name %q", c)
		}
		out[i] = filter.QuoteIdentifier(c)
	}
	return out, nil
}

func returningClause(columns []string) (string, error) {
	if len(columns) == 0 {
		return "", nil
	}
	if len(columns) == 1 && columns[0] == "*" {
		return "RETURNING *", nil
	}
	cols, err := columnList("returning", columns)
	if err != nil {
		return "", err
	}
	return "RETURNING " + strings.Join(cols, ", "), nil
}

func orderTerms(orders []Order) ([]string, error) {
	terms := make([]string, 0, len(orders))
	for _, o := range orders {
		expr, err := filter.ColumnSQL(o.Field)
		if err != nil {
			return nil, filter.Securityf("order_by", "unsafe order field %q", o.Field)
		}
		dir := " ASC"
		if o.Descending {
			dir = " DESC"
		}
		switch strings.ToLower(o.Nulls) {
		case "":
		case "first":
			dir += " NULLS FIRST"
		case "last":
			dir += " NULLS LAST"
		default:
			return nil, filter.Validationf("order_by", "nulls must be \"first\" or \"last\"")
		}
		terms = append(terms, expr+dir)
	}
	return terms, nil
}

func nonNegative(at string, v *int) (*uint64, error) {
	if v == nil {
		return nil, nil
	}
	if *v < 0 {
		return nil, filter.Validationf(at, "%s must be non-negative", at)
	}
	u := uint64(*v)
	return &u, nil
}
