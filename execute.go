package pgmcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rickchristie/postgres-crud-mcp/filter"
	"github.com/rickchristie/postgres-crud-mcp/querybuild"
)

// acquire takes a query slot. The returned func releases it.
func (p *PostgresMcp) acquire(ctx context.Context) (func(), error) {
	select {
	case p.semaphore <- struct{}{}:
		return func() { <-p.semaphore }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(p.semaphore), ctx.Err())
	}
}

func (p *PostgresMcp) schemaAllowed(schema string) bool {
	return len(p.allowedSchemas) == 0 || p.allowedSchemas[schema]
}

// checkTarget applies protection.allowed_schemas and returns the schema the
// statement must be built with. An unqualified table is checked as "public"
// and, when an allow-list is set, pinned to it, so that search_path cannot
// resolve it to a schema outside the list.
func (p *PostgresMcp) checkTarget(schema, table string) (string, error) {
	if len(p.allowedSchemas) == 0 {
		return schema, nil
	}
	s := schema
	if s == "" {
		s = "public"
		if i := strings.IndexByte(table, '.'); i > 0 {
			s = table[:i]
		}
	}
	if !p.allowedSchemas[s] {
		return "", filter.Securityf("schema", "schema %q is not in protection.allowed_schemas", s)
	}
	if schema == "" && !strings.Contains(table, ".") {
		return "public", nil
	}
	return schema, nil
}

// verify re-parses the compiled statement and checks it against the write
// policy. It runs for dry runs too, so a dry run reports what a real call
// would reject.
func (p *PostgresMcp) verify(stmt *querybuild.Statement) error {
	if err := p.guard.Check(stmt.SQL(), string(stmt.Command()), stmt.Unfiltered()); err != nil {
		return filter.Securityf("", "%v", err)
	}
	return nil
}

// descriptor is what hook and timeout patterns match, e.g. "DELETE public.orders".
func descriptor(stmt *querybuild.Statement) string {
	return string(stmt.Command()) + " " + stmt.Target()
}

// execStatement runs a verified statement through hooks, timeout and a
// transaction. Reads always roll back; writes commit unless they exceed
// protection.max_affected_rows.
func (p *PostgresMcp) execStatement(ctx context.Context, stmt *querybuild.Statement) (*RecordsOutput, error) {
	startTime := time.Now()

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, filter.QueryError(err)
	}
	defer release()

	beforeHooks, err := p.runBeforeHooks(ctx, stmt)
	if err != nil {
		return nil, err
	}

	target := descriptor(stmt)
	timeout, timeoutRule := p.timeoutMgr.GetTimeoutWithPattern(target)
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.pool.Acquire(queryCtx)
	if err != nil {
		return nil, filter.QueryError(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(queryCtx)
	if err != nil {
		return nil, filter.QueryError(err)
	}
	// Parent ctx: queryCtx may already be cancelled when the statement timed out.
	defer tx.Rollback(ctx)

	rows, err := tx.Query(queryCtx, stmt.SQL(), stmt.Parameters()...)
	if err != nil {
		return nil, filter.QueryError(err)
	}
	result, err := collectRows(rows)
	if err != nil {
		return nil, filter.QueryError(err)
	}

	if stmt.IsWrite() {
		if limit := p.config.Protection.MaxAffectedRows; limit > 0 && result.RowsAffected > limit {
			return nil, &filter.Error{
				Kind:    filter.KindSecurity,
				Limit:   int(limit),
				Message: fmt.Sprintf("%s affected %d rows, exceeding protection.max_affected_rows of %d; the transaction was rolled back", stmt.Command(), result.RowsAffected, limit),
			}
		}
		if err := tx.Commit(queryCtx); err != nil {
			return nil, filter.QueryError(err)
		}
	}

	sanitized := p.sanitizer.HasRules()
	result.Rows = p.sanitizer.SanitizeRows(result.Rows)
	p.truncateIfNeeded(result, stmt.IsWrite())

	logEvent := p.logger.Info().
		Str("command", string(stmt.Command())).
		Str("table", stmt.Target()).
		Str("sql", truncateForLog(stmt.SQL(), 200)).
		Int("param_count", len(stmt.Parameters())).
		Str("cache_key", stmt.CacheKey()).
		Dur("duration", time.Since(startTime)).
		Int("row_count", result.RowCount).
		Int64("rows_affected", result.RowsAffected)
	if len(beforeHooks) > 0 {
		logEvent = logEvent.Strs("before_hooks", beforeHooks)
	}
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if sanitized {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("statement executed")

	return result, nil
}

// runBeforeHooks runs Go hooks (library mode) or command hooks (CLI mode).
// Either kind may only accept or reject; the statement is never changed.
func (p *PostgresMcp) runBeforeHooks(ctx context.Context, stmt *querybuild.Statement) ([]string, error) {
	if len(p.goHooks) > 0 {
		var names []string
		for _, entry := range p.goHooks {
			names = append(names, entry.Name)
			timeout := entry.Timeout
			if timeout == 0 {
				timeout = time.Duration(p.config.DefaultHookTimeoutSeconds) * time.Second
			}
			hookCtx, cancel := context.WithTimeout(ctx, timeout)
			err := entry.Hook.Run(hookCtx, stmt)
			cancel()
			if err != nil {
				if errors.Is(hookCtx.Err(), context.DeadlineExceeded) {
					return names, filter.Securityf("", "before_statement hook timed out (name: %s, timeout: %s)", entry.Name, timeout)
				}
				return names, filter.Securityf("", "statement rejected by hook %s: %v", entry.Name, err)
			}
		}
		return names, nil
	}

	if p.cmdHooks == nil || !p.cmdHooks.HasHooks() {
		return nil, nil
	}
	payload, err := json.Marshal(stmt)
	if err != nil {
		return nil, filter.QueryError(err)
	}
	executed, err := p.cmdHooks.RunBeforeStatement(ctx, descriptor(stmt), payload)
	if err != nil {
		return executed, filter.Securityf("", "%v", err)
	}
	return executed, nil
}

// errorMessage renders err for a tool output: "<kind>: <message>" followed by
// any matching error prompts. Errors without a kind are reported as
// query_error.
func (p *PostgresMcp) errorMessage(err error) string {
	err = filter.QueryError(err)
	kind := string(filter.KindOf(err))
	errMsg := err.Error()
	prompt := p.errPrompts.Match(kind, errMsg)
	patterns := p.errPrompts.MatchedPatterns(kind, errMsg)

	logEvent := p.logger.Error().Err(err).Str("error_kind", kind)
	var fe *filter.Error
	if errors.As(err, &fe) {
		if fe.Field != "" {
			logEvent = logEvent.Str("field", fe.Field)
		}
		if fe.Operator != "" {
			logEvent = logEvent.Str("operator", fe.Operator)
		}
	}
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("statement error")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return errMsg
}

// truncateIfNeeded replaces rows with a truncated preview when their JSON
// form exceeds MaxResultLength characters. For a read the preview is the
// error. A write has already been committed at this point, so its preview
// goes to Notice and RowsAffected stays visible.
func (p *PostgresMcp) truncateIfNeeded(output *RecordsOutput, committedWrite bool) {
	jsonBytes, _ := json.Marshal(output.Rows)
	if utf8.RuneCount(jsonBytes) <= p.config.Query.MaxResultLength {
		return
	}
	runes := []rune(string(jsonBytes))
	truncated := string(runes[:p.config.Query.MaxResultLength])
	if committedWrite {
		output.Rows = []map[string]interface{}{}
		output.Notice = truncated + "...[truncated] The write was committed, but the returned rows are too long to show. Request fewer returning columns."
		return
	}
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add a filter, select fewer columns, or lower the limit."
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...[truncated]"
}
