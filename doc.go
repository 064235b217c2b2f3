// Package pgmcp gives AI agents structured CRUD access to PostgreSQL through
// the Model Context Protocol (MCP).
//
// Agents never write SQL. They call select_records, count_records,
// insert_records, update_records and delete_records with a JSON filter, and
// the engine compiles the request into a single parameterized statement
// (see the filter and querybuild packages). Every value travels as a bind
// parameter; every identifier is validated against a strict pattern.
//
// Each compiled statement then goes through a pipeline: re-parse with
// PostgreSQL's own parser via pg_query to verify its shape, before-statement
// hooks, per-target timeouts, a transaction with an affected-row guardrail,
// result sanitization and truncation. Errors come back in the output's Error
// field as "<kind>: <message>", where kind is validation_error,
// security_error or query_error, with configured error prompts appended.
//
// # Library Usage
//
//	p, err := pgmcp.New(ctx, connString, pgmcp.Config{
//		Pool: pgmcp.PoolConfig{MaxConns: 10},
//		Query: pgmcp.QueryConfig{
//			DefaultTimeoutSeconds:       30,
//			ListTablesTimeoutSeconds:    10,
//			DescribeTableTimeoutSeconds: 10,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close(ctx)
//
//	limit := 10
//	output := p.Select(ctx, pgmcp.SelectInput{
//		Table:   "users",
//		Filter:  `{"status": "active", "age": {"gt": 18}}`,
//		OrderBy: []pgmcp.OrderInput{{Field: "created_at", Descending: true}},
//		Limit:   &limit,
//	})
//
//	// Or register as MCP tools
//	pgmcp.RegisterMCPTools(mcpServer, p)
//
// # Hooks
//
// Before-statement hooks see the compiled statement and may reject it. They
// cannot rewrite it. Implement [BeforeStatementHook] in library mode:
//
//	audit := pgmcp.BeforeStatementHookFunc(func(ctx context.Context, stmt *querybuild.Statement) error {
//		if stmt.Command() == querybuild.CommandDelete && stmt.Table() == "audit_log" {
//			return errors.New("audit_log is append-only")
//		}
//		return nil
//	})
//
// In server mode the same contract is offered to external commands, which
// receive the statement as JSON on stdin and answer {"accept": bool}.
package pgmcp
