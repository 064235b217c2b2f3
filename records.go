package pgmcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rickchristie/postgres-crud-mcp/filter"
	"github.com/rickchristie/postgres-crud-mcp/querybuild"
)

// Select compiles and runs a SELECT. Like every CRUD method it never returns
// a Go error: callers only need to check output.Error.
func (p *PostgresMcp) Select(ctx context.Context, input SelectInput) *RecordsOutput {
	stmt, err := p.buildSelect(input)
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	return p.runRecords(ctx, stmt, input.DryRun)
}

// Count compiles and runs SELECT count(*).
func (p *PostgresMcp) Count(ctx context.Context, input CountInput) *CountOutput {
	schema, err := p.checkTarget(input.Schema, input.Table)
	if err != nil {
		return &CountOutput{Error: p.errorMessage(err)}
	}
	node, err := decodeFilter(input.Filter)
	if err != nil {
		return &CountOutput{Error: p.errorMessage(err)}
	}
	stmt, err := p.builder.Count(querybuild.CountRequest{Schema: schema, Table: input.Table, Filter: node})
	if err != nil {
		return &CountOutput{Error: p.errorMessage(err)}
	}
	if err := p.verify(stmt); err != nil {
		return &CountOutput{Error: p.errorMessage(err)}
	}
	if input.DryRun {
		return &CountOutput{Statement: stmt}
	}

	result, err := p.execStatement(ctx, stmt)
	if err != nil {
		return &CountOutput{Error: p.errorMessage(err)}
	}
	if result.Error != "" {
		return &CountOutput{Error: result.Error}
	}
	var count int64
	if len(result.Rows) == 1 {
		count, _ = result.Rows[0]["count"].(int64)
	}
	return &CountOutput{Count: count}
}

// Insert compiles and runs a single- or multi-row INSERT.
func (p *PostgresMcp) Insert(ctx context.Context, input InsertInput) *RecordsOutput {
	schema, err := p.checkTarget(input.Schema, input.Table)
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	stmt, err := p.builder.Insert(querybuild.InsertRequest{
		Schema:    schema,
		Table:     input.Table,
		Records:   input.Records,
		Returning: input.Returning,
	})
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	return p.runRecords(ctx, stmt, input.DryRun)
}

// Update compiles and runs an UPDATE. Without a filter or primary key value
// it is refused unless ConfirmUnfiltered is set and the configuration allows
// unfiltered updates.
func (p *PostgresMcp) Update(ctx context.Context, input UpdateInput) *RecordsOutput {
	schema, err := p.checkTarget(input.Schema, input.Table)
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	node, err := decodeFilter(input.Filter)
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	stmt, err := p.builder.Update(querybuild.UpdateRequest{
		Schema:            schema,
		Table:             input.Table,
		Set:               input.Set,
		PrimaryKey:        input.PrimaryKey,
		Filter:            node,
		ConfirmUnfiltered: input.ConfirmUnfiltered,
		Returning:         input.Returning,
	})
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	return p.runRecords(ctx, stmt, input.DryRun)
}

// Delete compiles and runs a DELETE under the same unfiltered policy as Update.
func (p *PostgresMcp) Delete(ctx context.Context, input DeleteInput) *RecordsOutput {
	schema, err := p.checkTarget(input.Schema, input.Table)
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	node, err := decodeFilter(input.Filter)
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	stmt, err := p.builder.Delete(querybuild.DeleteRequest{
		Schema:            schema,
		Table:             input.Table,
		Filter:            node,
		ConfirmUnfiltered: input.ConfirmUnfiltered,
		Returning:         input.Returning,
	})
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	return p.runRecords(ctx, stmt, input.DryRun)
}

// Compile builds the SELECT for input without verifying or running it. The
// returned statement is suitable for cache-key derivation by callers that
// execute it themselves.
func (p *PostgresMcp) Compile(input SelectInput) (*querybuild.Statement, error) {
	return p.buildSelect(input)
}

func (p *PostgresMcp) buildSelect(input SelectInput) (*querybuild.Statement, error) {
	schema, err := p.checkTarget(input.Schema, input.Table)
	if err != nil {
		return nil, err
	}
	node, err := decodeFilter(input.Filter)
	if err != nil {
		return nil, err
	}
	orders := make([]querybuild.Order, len(input.OrderBy))
	for i, o := range input.OrderBy {
		orders[i] = querybuild.Order{Field: o.Field, Descending: o.Descending, Nulls: o.Nulls}
	}
	return p.builder.Select(querybuild.SelectRequest{
		Schema:  schema,
		Table:   input.Table,
		Columns: input.Columns,
		Filter:  node,
		OrderBy: orders,
		Limit:   p.effectiveLimit(input.Limit),
		Offset:  input.Offset,
	})
}

// effectiveLimit applies query.default_limit and caps at query.max_limit.
// Negative limits pass through so the builder can reject them.
func (p *PostgresMcp) effectiveLimit(limit *int) *int {
	n := p.config.Query.DefaultLimit
	if limit != nil {
		n = *limit
	}
	if n > p.config.Query.MaxLimit {
		p.logger.Debug().Int("requested", n).Int("max_limit", p.config.Query.MaxLimit).Msg("limit capped")
		n = p.config.Query.MaxLimit
	}
	return &n
}

func (p *PostgresMcp) runRecords(ctx context.Context, stmt *querybuild.Statement, dryRun bool) *RecordsOutput {
	if err := p.verify(stmt); err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	if dryRun {
		return &RecordsOutput{Rows: []map[string]interface{}{}, Statement: stmt}
	}
	result, err := p.execStatement(ctx, stmt)
	if err != nil {
		return &RecordsOutput{Error: p.errorMessage(err)}
	}
	return result
}

// decodeFilter accepts a decoded JSON object, raw JSON text, or an already
// built filter.Node.
func decodeFilter(v any) (filter.Node, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case filter.Node:
		return f, nil
	case string:
		if strings.TrimSpace(f) == "" {
			return nil, nil
		}
		return filter.Parse([]byte(f))
	case json.RawMessage:
		return filter.Parse(f)
	case []byte:
		return filter.Parse(f)
	default:
		return filter.Normalize(f)
	}
}
