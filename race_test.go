package pgmcp_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	pgmcp "github.com/rickchristie/postgres-crud-mcp"
	"github.com/rickchristie/postgres-crud-mcp/internal/errprompt"
	"github.com/rickchristie/postgres-crud-mcp/internal/guard"
	"github.com/rickchristie/postgres-crud-mcp/internal/sanitize"
	"github.com/rickchristie/postgres-crud-mcp/internal/timeout"
)

func TestRace_ConcurrentSanitization(t *testing.T) {
	s, err := sanitize.NewSanitizer([]sanitize.Rule{
		{Pattern: `\d{3}-\d{4}`, Replacement: "***-****", Columns: []string{"phone"}},
		{Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, Replacement: "[REDACTED]"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				// Each iteration gets a fresh copy since SanitizeRows mutates in-place.
				rows := []map[string]interface{}{
					{"phone": "555-1234", "email": "test@example.com", "name": "Alice"},
					{"phone": "555-5678", "email": "bob@test.org", "name": "Bob"},
				}
				s.SanitizeRows(rows)
			}
		}()
	}
	wg.Wait()
}

func TestRace_ConcurrentGuardCheck(t *testing.T) {
	c := guard.NewChecker(guard.Config{})

	statements := []struct {
		sql     string
		command string
	}{
		{"SELECT * FROM users WHERE status = $1", "SELECT"},
		{"INSERT INTO users (name) VALUES ($1)", "INSERT"},
		{"UPDATE users SET name = $1 WHERE id = $2", "UPDATE"},
		{"DELETE FROM users WHERE id = $1", "DELETE"},
		{"DELETE FROM users", "DELETE"},
		{"SELECT count(*) FROM orders WHERE status IN ($1, $2)", "SELECT"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := statements[(id+j)%len(statements)]
				_ = c.Check(s.sql, s.command, false)
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentErrorPrompt(t *testing.T) {
	m, err := errprompt.NewMatcher([]errprompt.Rule{
		{Kind: "query_error", Pattern: `permission denied`, Message: "You don't have permission."},
		{Kind: "validation_error", Pattern: `unknown operator`, Message: "Check the operator list."},
		{Pattern: `does not exist`, Message: "The table or column may not exist."},
	})
	if err != nil {
		t.Fatal(err)
	}

	errors := []string{
		"permission denied for table users",
		"unknown operator \"greater\" on field \"age\"",
		"relation \"foo\" does not exist",
		"column \"bar\" does not exist",
		"connection refused",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				errMsg := errors[(id+j)%len(errors)]
				_ = m.Match("query_error", errMsg)
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentTimeout(t *testing.T) {
	m, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: 30 * time.Second,
		Rules: []timeout.Rule{
			{Pattern: `^SELECT analytics\.`, Timeout: 60 * time.Second},
			{Pattern: `^INSERT `, Timeout: 10 * time.Second},
			{Pattern: `^DELETE `, Timeout: 15 * time.Second},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	targets := []string{
		"SELECT analytics.events",
		"INSERT users",
		"DELETE public.sessions",
		"SELECT users",
		"UPDATE users",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.GetTimeout(targets[(id+j)%len(targets)])
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentDryRuns(t *testing.T) {
	p, err := pgmcp.New(context.Background(), dummyConnString, validConfig(), configTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				out := p.Select(context.Background(), pgmcp.SelectInput{
					Table:  "users",
					Filter: fmt.Sprintf(`{"or": [{"id": %d}, {"age": {"gt": %d}}], "created_at": {"last": 7}}`, id, j),
					DryRun: true,
				})
				if out.Error != "" {
					t.Errorf("goroutine %d iter %d: %s", id, j, out.Error)
					return
				}
				if n := len(out.Statement.Parameters()); n != 4 {
					t.Errorf("expected 4 parameters, got %d", n)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
