package guard

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Config is the guard's own config type.
type Config struct {
	AllowUnfilteredUpdate bool
	AllowUnfilteredDelete bool
	ReadOnly              bool
}

// Checker re-parses every generated statement before it reaches the database
// and verifies that it is exactly what the builder was asked for.
type Checker struct {
	config Config
}

// NewChecker creates a new Checker with the given config.
func NewChecker(config Config) *Checker {
	return &Checker{config: config}
}

// Check parses sql with pg_query_go and verifies it is a single statement of
// the given command ("SELECT", "INSERT", "UPDATE" or "DELETE"). unfiltered is
// true when the caller confirmed an UPDATE or DELETE without WHERE.
// Returns nil if allowed, descriptive error if blocked.
func (c *Checker) Check(sql string, command string, unfiltered bool) error {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("SQL parse error: %w", err)
	}
	if len(result.Stmts) == 0 {
		return fmt.Errorf("SQL parse error: empty statement")
	}
	if len(result.Stmts) > 1 {
		return fmt.Errorf("multi-statement queries are not allowed: found %d statements", len(result.Stmts))
	}

	node := result.Stmts[0].Stmt
	if hasWithClause(node) {
		return fmt.Errorf("WITH clauses are not allowed in generated statements")
	}

	var kind string
	var where *pg_query.Node
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		kind = "SELECT"
		if n.SelectStmt.IntoClause != nil {
			return fmt.Errorf("SELECT INTO is not allowed")
		}
		if len(n.SelectStmt.LockingClause) > 0 {
			return fmt.Errorf("row locking clauses are not allowed")
		}
	case *pg_query.Node_InsertStmt:
		kind = "INSERT"
		if n.InsertStmt.OnConflictClause != nil {
			return fmt.Errorf("ON CONFLICT is not allowed in generated statements")
		}
	case *pg_query.Node_UpdateStmt:
		kind = "UPDATE"
		where = n.UpdateStmt.WhereClause
	case *pg_query.Node_DeleteStmt:
		kind = "DELETE"
		where = n.DeleteStmt.WhereClause
	default:
		return fmt.Errorf("only SELECT, INSERT, UPDATE and DELETE statements are allowed")
	}

	if kind != command {
		return fmt.Errorf("statement mismatch: expected %s, parsed %s", command, kind)
	}
	if c.config.ReadOnly && kind != "SELECT" {
		return fmt.Errorf("%s is blocked in read-only mode", kind)
	}

	if (kind == "UPDATE" || kind == "DELETE") && where == nil {
		if !unfiltered {
			return fmt.Errorf("%s without WHERE clause is not allowed", kind)
		}
		if kind == "UPDATE" && !c.config.AllowUnfilteredUpdate {
			return fmt.Errorf("UPDATE without WHERE clause is disabled: set protection.allow_unfiltered_update to allow confirm_unfiltered")
		}
		if kind == "DELETE" && !c.config.AllowUnfilteredDelete {
			return fmt.Errorf("DELETE without WHERE clause is disabled: set protection.allow_unfiltered_delete to allow confirm_unfiltered")
		}
	}
	return nil
}

func hasWithClause(node *pg_query.Node) bool {
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return n.SelectStmt.WithClause != nil
	case *pg_query.Node_InsertStmt:
		return n.InsertStmt.WithClause != nil
	case *pg_query.Node_UpdateStmt:
		return n.UpdateStmt.WithClause != nil
	case *pg_query.Node_DeleteStmt:
		return n.DeleteStmt.WithClause != nil
	}
	return false
}
