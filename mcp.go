package pgmcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const filterDescription = `Filter object. Keys are column names (or JSON paths like "meta->tags") mapped to a value (equality; a list means IN) or an operator map such as {"gt": 18, "lte": 65}. ` +
	`Operators: eq ne gt gte lt lte between like ilike match imatch in nin is contains contained_by overlap array_length jsonb_contains has_key has_any_keys has_all_keys jsonb_path near within intersects relative. ` +
	`Combine with {"and": [...]}, {"or": [...]}, {"not": {...}} up to depth 5 and 50 conditions. ` +
	`Modifiers inside an operator map: "caseSensitive": false, "negate": true. ` +
	`Relative dates: {"relative": "last 7 days"}, {"last": 30}, {"today": true}, {"this": "month"}. ` +
	`Pass it as a JSON string to compile conditions in the order the keys are written; object keys are compiled in sorted order.`

// anyOf replaces a property's single type with a union of schemas.
func anyOf(variants ...map[string]any) mcp.PropertyOption {
	return func(schema map[string]any) {
		delete(schema, "type")
		delete(schema, "properties")
		schema["anyOf"] = variants
	}
}

// RegisterMCPTools registers the CRUD, ListTables and DescribeTable tools on
// the given MCP server. In read-only mode the write tools are not registered.
func RegisterMCPTools(mcpServer *server.MCPServer, pgMcp *PostgresMcp) {
	target := func(verb string) []mcp.ToolOption {
		return []mcp.ToolOption{
			mcp.WithString("table", mcp.Required(), mcp.Description("The table to "+verb+". May be qualified as schema.table.")),
			mcp.WithString("schema", mcp.Description("The schema name. Unqualified tables resolve through the search_path, or to public when an allowed schema list is configured.")),
		}
	}
	withFilter := mcp.WithObject("filter", mcp.Description(filterDescription),
		anyOf(map[string]any{"type": "object"}, map[string]any{"type": "string"}),
	)
	withDryRun := mcp.WithBoolean("dry_run", mcp.Description("Return the compiled SQL, parameters and cache key without executing."))
	withReturning := mcp.WithArray("returning",
		mcp.Description(`Columns to return from the affected rows, or ["*"].`),
		mcp.Items(map[string]any{"type": "string"}),
	)
	withConfirm := mcp.WithBoolean("confirm_unfiltered",
		mcp.Description("Required to run without a filter. Only set this after the user explicitly asked to affect every row."),
	)

	selectOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Select rows from a table with a structured filter. Returns rows as JSON."),
		withFilter,
		mcp.WithArray("columns", mcp.Description("Columns to return. Defaults to all."), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("order_by",
			mcp.Description(`Column to sort by. For several terms pass an array like ["-created_at", "name"] or [{"field": "created_at", "direction": "desc", "nulls": "last"}].`),
			anyOf(
				map[string]any{"type": "string"},
				map[string]any{"type": "array", "items": map[string]any{"anyOf": []map[string]any{{"type": "string"}, {"type": "object"}}}},
			),
		),
		mcp.WithBoolean("ascending", mcp.Description("Sort direction when order_by is a single column. Defaults to true.")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return. A default limit applies when omitted.")),
		mcp.WithNumber("offset", mcp.Description("Rows to skip.")),
		withDryRun,
		mcp.WithReadOnlyHintAnnotation(true),
	}, target("select from")...)
	mcpServer.AddTool(mcp.NewTool("select_records", selectOpts...), pgMcp.loggedToolHandler("select_records",
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			input, err := selectInputFromArgs(req.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(pgMcp.errorMessage(err)), nil
			}
			return toolResult(pgMcp.Select(ctx, input), func(o *RecordsOutput) string { return o.Error })
		}))

	countOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Count rows in a table matching a structured filter."),
		withFilter,
		withDryRun,
		mcp.WithReadOnlyHintAnnotation(true),
	}, target("count")...)
	mcpServer.AddTool(mcp.NewTool("count_records", countOpts...), pgMcp.loggedToolHandler("count_records",
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			input, err := countInputFromArgs(req.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(pgMcp.errorMessage(err)), nil
			}
			return toolResult(pgMcp.Count(ctx, input), func(o *CountOutput) string { return o.Error })
		}))

	if !pgMcp.config.ReadOnly {
		insertOpts := append([]mcp.ToolOption{
			mcp.WithDescription("Insert one or more rows. Columns missing from a record get their default."),
			mcp.WithArray("records", mcp.Description("Rows to insert, each an object of column values."), mcp.Items(map[string]any{"type": "object"})),
			mcp.WithObject("record", mcp.Description("A single row to insert. Alternative to records.")),
			withReturning,
			withDryRun,
			mcp.WithDestructiveHintAnnotation(false),
		}, target("insert into")...)
		mcpServer.AddTool(mcp.NewTool("insert_records", insertOpts...), pgMcp.loggedToolHandler("insert_records",
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				input, err := insertInputFromArgs(req.GetArguments())
				if err != nil {
					return mcp.NewToolResultError(pgMcp.errorMessage(err)), nil
				}
				return toolResult(pgMcp.Insert(ctx, input), func(o *RecordsOutput) string { return o.Error })
			}))

		updateOpts := append([]mcp.ToolOption{
			mcp.WithDescription("Update rows matching a filter. If set contains the primary key, only that row is updated."),
			mcp.WithObject("set", mcp.Required(), mcp.Description("Column values to write.")),
			mcp.WithString("primary_key", mcp.Description("Primary key column. Defaults to id.")),
			withFilter,
			withConfirm,
			withReturning,
			withDryRun,
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithIdempotentHintAnnotation(true),
		}, target("update")...)
		mcpServer.AddTool(mcp.NewTool("update_records", updateOpts...), pgMcp.loggedToolHandler("update_records",
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				input, err := updateInputFromArgs(req.GetArguments())
				if err != nil {
					return mcp.NewToolResultError(pgMcp.errorMessage(err)), nil
				}
				return toolResult(pgMcp.Update(ctx, input), func(o *RecordsOutput) string { return o.Error })
			}))

		deleteOpts := append([]mcp.ToolOption{
			mcp.WithDescription("Delete rows matching a filter."),
			withFilter,
			withConfirm,
			withReturning,
			withDryRun,
			mcp.WithDestructiveHintAnnotation(true),
		}, target("delete from")...)
		mcpServer.AddTool(mcp.NewTool("delete_records", deleteOpts...), pgMcp.loggedToolHandler("delete_records",
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				input, err := deleteInputFromArgs(req.GetArguments())
				if err != nil {
					return mcp.NewToolResultError(pgMcp.errorMessage(err)), nil
				}
				return toolResult(pgMcp.Delete(ctx, input), func(o *RecordsOutput) string { return o.Error })
			}))
	}

	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List the tables and views accessible to the current user, with whether each is writable."),
		mcp.WithString("schema", mcp.Description("Only list this schema.")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listTablesTool, pgMcp.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := pgMcp.ListTables(ctx, ListTablesInput{Schema: req.GetString("schema", "")})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResult(output, func(o *ListTablesOutput) string { return o.Error })
	}))

	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Describe a table: columns with types and the filter operators they support, primary key, indexes and constraints."),
		mcp.WithString("table", mcp.Required(), mcp.Description("The table name to describe")),
		mcp.WithString("schema", mcp.Description("The schema name (defaults to 'public')")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(describeTableTool, pgMcp.loggedToolHandler("describe_table", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		output, err := pgMcp.DescribeTable(ctx, DescribeTableInput{Table: table, Schema: req.GetString("schema", "")})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResult(output, func(o *DescribeTableOutput) string { return o.Error })
	}))
}

// toolResult renders output as JSON, or as a tool error when errOf reports one.
func toolResult[T any](output T, errOf func(T) string) (*mcp.CallToolResult, error) {
	if msg := errOf(output); msg != "" {
		return mcp.NewToolResultError(msg), nil
	}
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (p *PostgresMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		event := p.logger.Info()
		if result != nil && result.IsError {
			event = p.logger.Warn()
		}
		event.
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
