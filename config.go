package pgmcp

import (
	"context"
	"time"

	"github.com/rickchristie/postgres-crud-mcp/querybuild"
)

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool                      PoolConfig         `json:"pool"`
	Protection                ProtectionConfig   `json:"protection"`
	Query                     QueryConfig        `json:"query"`
	ErrorPrompts              []ErrorPromptRule  `json:"error_prompts"`
	Sanitization              []SanitizationRule `json:"sanitization"`
	ReadOnly                  bool               `json:"read_only"`
	Timezone                  string             `json:"timezone"`
	DefaultHookTimeoutSeconds int                `json:"default_hook_timeout_seconds"`

	// Library mode: Go function hooks (not serializable).
	// Mutually exclusive with ServerConfig.ServerHooks.
	BeforeStatementHooks []BeforeStatementHookEntry `json:"-"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection  ConnectionConfig  `json:"connection"`
	Server      ServerSettings    `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
	ServerHooks ServerHooksConfig `json:"server_hooks"`
}

// ConnectionConfig holds database connection parameters used by CLI mode.
type ConnectionConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DBName  string `json:"dbname"`
	SSLMode string `json:"sslmode"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxConns          int    `json:"max_conns"`
	MinConns          int    `json:"min_conns"`
	MaxConnLifetime   string `json:"max_conn_lifetime"`
	MaxConnIdleTime   string `json:"max_conn_idle_time"`
	HealthCheckPeriod string `json:"health_check_period"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stderr, stdout, or file path
}

// ProtectionConfig holds write guardrails. All fields default to the safe
// choice: unfiltered writes are refused even when confirmed.
type ProtectionConfig struct {
	AllowUnfilteredUpdate bool `json:"allow_unfiltered_update"`
	AllowUnfilteredDelete bool `json:"allow_unfiltered_delete"`
	// MaxAffectedRows rolls back any write touching more rows. 0 disables it.
	MaxAffectedRows int64 `json:"max_affected_rows"`
	// AllowedSchemas restricts every tool to these schemas. Empty allows all.
	AllowedSchemas []string `json:"allowed_schemas"`
}

// QueryConfig holds statement execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds       int           `json:"default_timeout_seconds"`
	ListTablesTimeoutSeconds    int           `json:"list_tables_timeout_seconds"`
	DescribeTableTimeoutSeconds int           `json:"describe_table_timeout_seconds"`
	MaxResultLength             int           `json:"max_result_length"`
	DefaultLimit                int           `json:"default_limit"`
	MaxLimit                    int           `json:"max_limit"`
	TimeoutRules                []TimeoutRule `json:"timeout_rules"`
}

// TimeoutRule maps a statement target pattern, e.g. "^SELECT analytics\.",
// to a specific timeout.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message. Kind
// optionally restricts the rule to one error kind.
type ErrorPromptRule struct {
	Kind    string `json:"kind,omitempty"`
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based value sanitization rule. Columns
// scopes the rule to the named result columns.
type SanitizationRule struct {
	Pattern     string   `json:"pattern"`
	Replacement string   `json:"replacement"`
	Columns     []string `json:"columns,omitempty"`
	Description string   `json:"description"`
}

// ServerHooksConfig holds command-based hook configuration for CLI mode.
type ServerHooksConfig struct {
	BeforeStatement []HookEntry `json:"before_statement"`
}

// HookEntry defines a single command-based hook. Pattern is matched against
// the statement target, e.g. "DELETE public.orders".
type HookEntry struct {
	Pattern        string   `json:"pattern"`
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// BeforeStatementHook inspects a compiled statement before it runs. Returning
// an error rejects the statement.
type BeforeStatementHook interface {
	Run(ctx context.Context, stmt *querybuild.Statement) error
}

// BeforeStatementHookFunc adapts a function to BeforeStatementHook.
type BeforeStatementHookFunc func(ctx context.Context, stmt *querybuild.Statement) error

func (f BeforeStatementHookFunc) Run(ctx context.Context, stmt *querybuild.Statement) error {
	return f(ctx, stmt)
}

// BeforeStatementHookEntry wraps a BeforeStatementHook with metadata.
type BeforeStatementHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    BeforeStatementHook
}
