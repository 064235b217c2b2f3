package pgmcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rickchristie/postgres-crud-mcp/filter"
	"github.com/rickchristie/postgres-crud-mcp/internal/errprompt"
	"github.com/rickchristie/postgres-crud-mcp/internal/guard"
	"github.com/rickchristie/postgres-crud-mcp/internal/hooks"
	"github.com/rickchristie/postgres-crud-mcp/internal/sanitize"
	"github.com/rickchristie/postgres-crud-mcp/internal/timeout"
	"github.com/rickchristie/postgres-crud-mcp/querybuild"
)

const (
	defaultMaxResultLength = 100000
	defaultLimit           = 100
	defaultMaxLimit        = 1000
)

// PostgresMcp is the core engine behind the CRUD and introspection tools.
// All exported methods are safe for concurrent use from multiple goroutines.
type PostgresMcp struct {
	config         Config
	pool           *pgxpool.Pool
	semaphore      chan struct{}
	builder        *querybuild.Builder
	guard          *guard.Checker
	cmdHooks       *hooks.Runner              // command-based hooks (CLI mode)
	goHooks        []BeforeStatementHookEntry // Go function hooks (library mode)
	sanitizer      *sanitize.Sanitizer
	errPrompts     *errprompt.Matcher
	timeoutMgr     *timeout.Manager
	allowedSchemas map[string]bool
	logger         zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	serverHooks *ServerHooksConfig
	now         func() time.Time
}

// WithServerHooks passes command-based hook configuration to PostgresMcp.
// Mutually exclusive with Config.BeforeStatementHooks (Go hooks).
func WithServerHooks(h ServerHooksConfig) Option {
	return func(o *options) {
		o.serverHooks = &h
	}
}

// WithClock overrides the clock used to resolve relative date filters.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a new PostgresMcp instance.
// connString is the PostgreSQL connection string (must include credentials).
// Panics on invalid config. Returns error only for runtime failures (e.g., pool creation).
func New(ctx context.Context, connString string, config Config, logger zerolog.Logger, opts ...Option) (*PostgresMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Config validation (panics on invalid config) ---

	if connString == "" {
		panic("pgmcp: connString must be non-empty")
	}
	if config.Pool.MaxConns <= 0 {
		panic("pgmcp: pool.max_conns must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("pgmcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.ListTablesTimeoutSeconds <= 0 {
		panic("pgmcp: query.list_tables_timeout_seconds must be > 0")
	}
	if config.Query.DescribeTableTimeoutSeconds <= 0 {
		panic("pgmcp: query.describe_table_timeout_seconds must be > 0")
	}

	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = defaultMaxResultLength
	}
	if config.Query.MaxLimit == 0 {
		config.Query.MaxLimit = defaultMaxLimit
	}
	if config.Query.DefaultLimit == 0 {
		config.Query.DefaultLimit = min(defaultLimit, config.Query.MaxLimit)
	}
	if config.Query.MaxResultLength < 0 {
		panic("pgmcp: query.max_result_length must be > 0")
	}
	if config.Query.MaxLimit < 0 || config.Query.DefaultLimit < 0 {
		panic("pgmcp: query.default_limit and query.max_limit must be > 0")
	}
	if config.Query.DefaultLimit > config.Query.MaxLimit {
		panic(fmt.Sprintf("pgmcp: query.default_limit (%d) exceeds query.max_limit (%d)", config.Query.DefaultLimit, config.Query.MaxLimit))
	}
	if config.Protection.MaxAffectedRows < 0 {
		panic("pgmcp: protection.max_affected_rows must be >= 0")
	}

	allowedSchemas := make(map[string]bool, len(config.Protection.AllowedSchemas))
	for _, s := range config.Protection.AllowedSchemas {
		if err := filter.ValidateIdentifier(s); err != nil || strings.Contains(s, ".") {
			panic(fmt.Sprintf("pgmcp: invalid schema %q in protection.allowed_schemas", s))
		}
		allowedSchemas[s] = true
	}

	loc := time.UTC
	if config.Timezone != "" {
		l, err := time.LoadLocation(config.Timezone)
		if err != nil {
			panic(fmt.Sprintf("pgmcp: invalid timezone %q: %v", config.Timezone, err))
		}
		loc = l
	}

	// Go hooks and command hooks are mutually exclusive
	hasGoHooks := len(config.BeforeStatementHooks) > 0
	hasCmdHooks := o.serverHooks != nil && len(o.serverHooks.BeforeStatement) > 0
	if hasGoHooks && hasCmdHooks {
		panic("pgmcp: Go hooks (Config.BeforeStatementHooks) and command hooks (WithServerHooks) are mutually exclusive")
	}
	if hasGoHooks && config.DefaultHookTimeoutSeconds <= 0 {
		panic("pgmcp: default_hook_timeout_seconds must be > 0 when Go hooks are configured")
	}
	for _, entry := range config.BeforeStatementHooks {
		if entry.Hook == nil {
			panic(fmt.Sprintf("pgmcp: before_statement hook %q has no Hook", entry.Name))
		}
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("pgmcp: before_statement hook %q has negative timeout", entry.Name))
		}
	}

	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("pgmcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic("pgmcp: " + err.Error())
	}
	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		panic("pgmcp: " + err.Error())
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		Rules:          mapTimeoutRules(config.Query.TimeoutRules),
	})
	if err != nil {
		panic("pgmcp: " + err.Error())
	}

	var cmdHooks *hooks.Runner
	if hasCmdHooks {
		entries := make([]hooks.HookEntry, len(o.serverHooks.BeforeStatement))
		for i, e := range o.serverHooks.BeforeStatement {
			entries[i] = hooks.HookEntry{
				Pattern: e.Pattern,
				Command: e.Command,
				Args:    e.Args,
				Timeout: time.Duration(e.TimeoutSeconds) * time.Second,
			}
		}
		cmdHooks = hooks.NewRunner(hooks.Config{
			DefaultTimeout:  time.Duration(config.DefaultHookTimeoutSeconds) * time.Second,
			BeforeStatement: entries,
		}, logger)
	}

	// --- Configure pgxpool ---

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.Pool.MaxConns)
	poolConfig.MinConns = int32(config.Pool.MinConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	poolConfig.MaxConnLifetime = parsePoolDuration("max_conn_lifetime", config.Pool.MaxConnLifetime, poolConfig.MaxConnLifetime)
	poolConfig.MaxConnIdleTime = parsePoolDuration("max_conn_idle_time", config.Pool.MaxConnIdleTime, poolConfig.MaxConnIdleTime)
	poolConfig.HealthCheckPeriod = parsePoolDuration("health_check_period", config.Pool.HealthCheckPeriod, poolConfig.HealthCheckPeriod)

	// Session settings follow the config so that database-side now() agrees
	// with the location used for relative date filters.
	if config.ReadOnly || config.Timezone != "" {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if config.ReadOnly {
				if _, err := conn.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
					return fmt.Errorf("failed to SET default_transaction_read_only: %w", err)
				}
			}
			if config.Timezone != "" {
				escaped := strings.ReplaceAll(config.Timezone, "'", "''")
				if _, err := conn.Exec(ctx, fmt.Sprintf("SET timezone = '%s'", escaped)); err != nil {
					return fmt.Errorf("failed to SET timezone: %w", err)
				}
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	compilerOpts := []filter.Option{filter.WithLocation(loc)}
	if o.now != nil {
		compilerOpts = append(compilerOpts, filter.WithClock(o.now))
	}

	return &PostgresMcp{
		config:    config,
		pool:      pool,
		semaphore: make(chan struct{}, config.Pool.MaxConns),
		builder:   querybuild.New(filter.NewCompiler(compilerOpts...)),
		guard: guard.NewChecker(guard.Config{
			AllowUnfilteredUpdate: config.Protection.AllowUnfilteredUpdate,
			AllowUnfilteredDelete: config.Protection.AllowUnfilteredDelete,
			ReadOnly:              config.ReadOnly,
		}),
		cmdHooks:       cmdHooks,
		goHooks:        config.BeforeStatementHooks,
		sanitizer:      san,
		errPrompts:     matcher,
		timeoutMgr:     tmgr,
		allowedSchemas: allowedSchemas,
		logger:         logger,
	}, nil
}

// Ping verifies that a connection can be established.
func (p *PostgresMcp) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool. The context is accepted for forward
// compatibility; pgxpool.Pool.Close() does not take one.
func (p *PostgresMcp) Close(ctx context.Context) {
	p.pool.Close()
}

func parsePoolDuration(name, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("pgmcp: invalid pool.%s %q: %v", name, value, err))
	}
	return d
}

func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
			Columns:     r.Columns,
		}
	}
	return result
}

func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Kind:    r.Kind,
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}

func mapTimeoutRules(rules []TimeoutRule) []timeout.Rule {
	result := make([]timeout.Rule, len(rules))
	for i, r := range rules {
		result[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	return result
}
