package querybuild

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Command is the SQL command of a Statement.
type Command string

const (
	CommandSelect Command = "SELECT"
	CommandInsert Command = "INSERT"
	CommandUpdate Command = "UPDATE"
	CommandDelete Command = "DELETE"
)

// Statement is a fully rendered, parameterized SQL statement. It is immutable:
// accessors return copies.
type Statement struct {
	command    Command
	schema     string
	table      string
	sql        string
	params     []any
	unfiltered bool
}

func (s *Statement) Command() Command { return s.command }
func (s *Statement) Schema() string   { return s.schema }
func (s *Statement) Table() string    { return s.table }
func (s *Statement) SQL() string      { return s.sql }

// Parameters returns the positional parameters; element k-1 binds $k.
func (s *Statement) Parameters() []any {
	out := make([]any, len(s.params))
	copy(out, s.params)
	return out
}

// Unfiltered reports an UPDATE or DELETE that was explicitly confirmed to run
// without a WHERE clause.
func (s *Statement) Unfiltered() bool { return s.unfiltered }

// IsWrite reports whether the statement modifies data.
func (s *Statement) IsWrite() bool { return s.command != CommandSelect }

// Target returns "schema.table", or just the table when no schema was given.
func (s *Statement) Target() string {
	if s.schema == "" {
		return s.table
	}
	return s.schema + "." + s.table
}

// CacheKey fingerprints the statement. Two statements share a key only if
// they have the same command, target, SQL text and parameter values, so the
// key is safe to use for result caching. Relative dates are resolved before
// the key is computed, so the key changes as the window moves.
func (s *Statement) CacheKey() string {
	h := xxhash.New()
	for _, part := range []string{string(s.command), s.schema, s.table, s.sql} {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0})
	}
	if b, err := json.Marshal(s.params); err == nil {
		_, _ = h.Write(b)
	} else {
		_, _ = fmt.Fprintf(h, "%#v", s.params)
	}
	return fmt.Sprintf("qb_%016x", h.Sum64())
}

type statementJSON struct {
	Command    Command `json:"command"`
	Schema     string  `json:"schema,omitempty"`
	Table      string  `json:"table"`
	SQL        string  `json:"sql"`
	Parameters []any   `json:"parameters"`
	Unfiltered bool    `json:"unfiltered,omitempty"`
	CacheKey   string  `json:"cache_key"`
}

func (s *Statement) MarshalJSON() ([]byte, error) {
	return json.Marshal(statementJSON{
		Command:    s.command,
		Schema:     s.schema,
		Table:      s.table,
		SQL:        s.sql,
		Parameters: s.Parameters(),
		Unfiltered: s.unfiltered,
		CacheKey:   s.CacheKey(),
	})
}
