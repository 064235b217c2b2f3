package timeout

import (
	"strings"
	"testing"
	"time"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		DefaultTimeout: 30 * time.Second,
		Rules: []Rule{
			{Pattern: `^SELECT analytics\.`, Timeout: 120 * time.Second},
			{Pattern: `^(UPDATE|DELETE) `, Timeout: 5 * time.Second},
			{Pattern: `events$`, Timeout: 60 * time.Second},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestGetTimeout(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	tests := []struct {
		target string
		want   time.Duration
	}{
		{"SELECT analytics.events", 120 * time.Second}, // first match wins
		{"DELETE public.events", 5 * time.Second},
		{"INSERT public.events", 60 * time.Second},
		{"SELECT public.users", 30 * time.Second},
	}
	for _, tt := range tests {
		if got := m.GetTimeout(tt.target); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.target, tt.want, got)
		}
	}
}

func TestGetTimeoutWithPattern(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	d, pattern := m.GetTimeoutWithPattern("UPDATE public.users")
	if d != 5*time.Second || pattern != `^(UPDATE|DELETE) ` {
		t.Errorf("expected 5s from update rule, got %v %q", d, pattern)
	}

	d, pattern = m.GetTimeoutWithPattern("SELECT users")
	if d != 30*time.Second || pattern != "" {
		t.Errorf("expected default with empty pattern, got %v %q", d, pattern)
	}
}

func TestNoRules(t *testing.T) {
	t.Parallel()
	m, err := NewManager(Config{DefaultTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.GetTimeout("SELECT users"); got != 10*time.Second {
		t.Errorf("expected 10s, got %v", got)
	}
}

func TestNewManagerErrorsOnInvalidRegex(t *testing.T) {
	t.Parallel()
	_, err := NewManager(Config{
		DefaultTimeout: 30 * time.Second,
		Rules:          []Rule{{Pattern: `[invalid`, Timeout: 5 * time.Second}},
	})
	if err == nil {
		t.Fatal("expected error for invalid regex pattern")
	}
	if !strings.Contains(err.Error(), "invalid regex pattern") || !strings.Contains(err.Error(), "[invalid") {
		t.Fatalf("unexpected error: %s", err)
	}
}
