package configure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	pgmcp "github.com/rickchristie/postgres-crud-mcp"
	"github.com/rickchristie/postgres-crud-mcp/filter"
)

// Run runs the interactive configuration wizard.
// Reads existing config (if any), prompts for each field,
// writes updated config to the given path.
func Run(configPath string) error {
	return run(configPath, os.Stdin, os.Stderr)
}

func run(configPath string, input io.Reader, output io.Writer) error {
	cfg, isNew := loadExisting(configPath)
	if isNew {
		applyDefaults(cfg)
	}

	p := &prompter{
		scanner: bufio.NewScanner(input),
		output:  output,
		isNew:   isNew,
	}

	fmt.Fprintf(output, "gopgcrud configuration wizard\n")
	fmt.Fprintf(output, "Config file: %s\n\n", configPath)

	p.section("Connection")
	cfg.Connection.Host = p.promptString("connection.host", cfg.Connection.Host, "")
	cfg.Connection.Port = p.promptInt("connection.port", cfg.Connection.Port, "must be > 0", positive)
	cfg.Connection.DBName = p.promptString("connection.dbname", cfg.Connection.DBName, "required")
	cfg.Connection.SSLMode = p.promptEnum("connection.sslmode", cfg.Connection.SSLMode, sslModes)

	p.section("Server")
	cfg.Server.Port = p.promptInt("server.port", cfg.Server.Port, "must be > 0", positive)
	cfg.Server.HealthCheckEnabled = p.promptBool("server.health_check_enabled", cfg.Server.HealthCheckEnabled)
	cfg.Server.HealthCheckPath = p.promptString("server.health_check_path", cfg.Server.HealthCheckPath, "e.g. /healthz, required when health_check_enabled is true")

	p.section("Logging")
	cfg.Logging.Level = p.promptEnum("logging.level", cfg.Logging.Level, logLevels)
	cfg.Logging.Format = p.promptEnum("logging.format", cfg.Logging.Format, logFormats)
	cfg.Logging.Output = p.promptString("logging.output", cfg.Logging.Output, "stdout, stderr, or file path")

	p.section("Pool")
	cfg.Pool.MaxConns = p.promptInt("pool.max_conns", cfg.Pool.MaxConns, "must be > 0", positive)
	cfg.Pool.MinConns = p.promptInt("pool.min_conns", cfg.Pool.MinConns, "must be >= 0", nonNegative)
	cfg.Pool.MaxConnLifetime = p.promptDuration("pool.max_conn_lifetime", cfg.Pool.MaxConnLifetime, "Go duration: e.g. 1h, 30m, 1h30m")
	cfg.Pool.MaxConnIdleTime = p.promptDuration("pool.max_conn_idle_time", cfg.Pool.MaxConnIdleTime, "Go duration: e.g. 1h, 30m, 1h30m")
	cfg.Pool.HealthCheckPeriod = p.promptDuration("pool.health_check_period", cfg.Pool.HealthCheckPeriod, "Go duration: e.g. 1m, 30s, 1m30s")

	p.section("Query")
	cfg.Query.DefaultTimeoutSeconds = p.promptInt("query.default_timeout_seconds", cfg.Query.DefaultTimeoutSeconds, "seconds, must be > 0", positive)
	cfg.Query.ListTablesTimeoutSeconds = p.promptInt("query.list_tables_timeout_seconds", cfg.Query.ListTablesTimeoutSeconds, "seconds, must be > 0", positive)
	cfg.Query.DescribeTableTimeoutSeconds = p.promptInt("query.describe_table_timeout_seconds", cfg.Query.DescribeTableTimeoutSeconds, "seconds, must be > 0", positive)
	cfg.Query.MaxResultLength = p.promptInt("query.max_result_length", cfg.Query.MaxResultLength, "characters, must be > 0", positive)
	cfg.Query.DefaultLimit = p.promptInt("query.default_limit", cfg.Query.DefaultLimit, "rows returned when select_records has no limit, 0 = none", nonNegative)
	defaultLimit := cfg.Query.DefaultLimit
	cfg.Query.MaxLimit = p.promptInt("query.max_limit", cfg.Query.MaxLimit, "cap on any select_records limit, 0 = none", func(v int) string {
		if v < 0 {
			return "Value must be >= 0"
		}
		if v > 0 && v < defaultLimit {
			return fmt.Sprintf("Value must be >= query.default_limit (%d)", defaultLimit)
		}
		return ""
	})

	p.section("General")
	cfg.ReadOnly = p.promptBool("read_only", cfg.ReadOnly)
	cfg.Timezone = p.promptTimezone(cfg.Timezone)
	cfg.DefaultHookTimeoutSeconds = p.promptInt("default_hook_timeout_seconds", cfg.DefaultHookTimeoutSeconds, "seconds, must be > 0 when hooks are configured", nonNegative)

	p.section("Protection")
	cfg.Protection.AllowUnfilteredUpdate = p.promptBool("protection.allow_unfiltered_update", cfg.Protection.AllowUnfilteredUpdate)
	cfg.Protection.AllowUnfilteredDelete = p.promptBool("protection.allow_unfiltered_delete", cfg.Protection.AllowUnfilteredDelete)
	cfg.Protection.MaxAffectedRows = int64(p.promptInt("protection.max_affected_rows", int(cfg.Protection.MaxAffectedRows), "writes touching more rows are rolled back, 0 = unlimited", nonNegative))
	cfg.Protection.AllowedSchemas = p.promptIdentifierList("protection.allowed_schemas", cfg.Protection.AllowedSchemas)

	p.section("Timeout Rules")
	cfg.Query.TimeoutRules = editList(p, "timeout rule", cfg.Query.TimeoutRules,
		func(r pgmcp.TimeoutRule) string {
			return fmt.Sprintf("pattern=%q timeout_seconds=%d", r.Pattern, r.TimeoutSeconds)
		},
		func() pgmcp.TimeoutRule {
			return pgmcp.TimeoutRule{
				Pattern:        p.promptNewRegexField("pattern", "matched against e.g. \"DELETE public.orders\""),
				TimeoutSeconds: p.promptNewIntField("timeout_seconds", "must be > 0", positive),
			}
		})

	p.section("Error Prompts")
	cfg.ErrorPrompts = editList(p, "error prompt", cfg.ErrorPrompts,
		func(r pgmcp.ErrorPromptRule) string {
			return fmt.Sprintf("kind=%q pattern=%q message=%q", r.Kind, r.Pattern, r.Message)
		},
		func() pgmcp.ErrorPromptRule {
			return pgmcp.ErrorPromptRule{
				Kind:    p.promptNewEnumField("kind", errorKinds),
				Pattern: p.promptNewRegexField("pattern", ""),
				Message: p.promptNewField("message"),
			}
		})

	p.section("Sanitization Rules")
	cfg.Sanitization = editList(p, "sanitization rule", cfg.Sanitization,
		func(r pgmcp.SanitizationRule) string {
			return fmt.Sprintf("pattern=%q replacement=%q columns=%v description=%q", r.Pattern, r.Replacement, r.Columns, r.Description)
		},
		func() pgmcp.SanitizationRule {
			return pgmcp.SanitizationRule{
				Pattern:     p.promptNewRegexField("pattern", ""),
				Replacement: p.promptNewField("replacement"),
				Columns:     splitList(p.promptNewField("columns (comma-separated, empty = all)")),
				Description: p.promptNewField("description"),
			}
		})

	p.section("Server Hooks: Before Statement")
	cfg.ServerHooks.BeforeStatement = editList(p, "server_hooks.before_statement", cfg.ServerHooks.BeforeStatement,
		func(e pgmcp.HookEntry) string {
			return fmt.Sprintf("pattern=%q command=%q args=%v timeout_seconds=%d", e.Pattern, e.Command, e.Args, e.TimeoutSeconds)
		},
		func() pgmcp.HookEntry {
			return pgmcp.HookEntry{
				Pattern:        p.promptNewRegexField("pattern", "matched against e.g. \"DELETE public.orders\""),
				Command:        p.promptNewField("command"),
				Args:           splitList(p.promptNewField("args (comma-separated)")),
				TimeoutSeconds: p.promptNewIntField("timeout_seconds", "0 = default_hook_timeout_seconds", nonNegative),
			}
		})

	if len(cfg.ServerHooks.BeforeStatement) > 0 && cfg.DefaultHookTimeoutSeconds <= 0 {
		fmt.Fprintf(output, "\nWarning: default_hook_timeout_seconds must be > 0 when server hooks are configured.\n")
	}

	if err := writeConfig(configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(output, "\nConfiguration saved to %s\n", configPath)
	return nil
}

func loadExisting(configPath string) (*pgmcp.ServerConfig, bool) {
	cfg := &pgmcp.ServerConfig{}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, true
	}
	// Start with whatever was parseable.
	_ = json.Unmarshal(data, cfg)
	return cfg, false
}

// applyDefaults sets default values for a new configuration. Unfiltered
// writes stay refused.
func applyDefaults(cfg *pgmcp.ServerConfig) {
	cfg.Connection.Host = "localhost"
	cfg.Connection.Port = 5432
	cfg.Connection.SSLMode = "prefer"
	cfg.Server.Port = 8080
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"
	cfg.Pool.MaxConns = 5
	cfg.Pool.MaxConnLifetime = "1h"
	cfg.Pool.MaxConnIdleTime = "30m"
	cfg.Pool.HealthCheckPeriod = "1m"
	cfg.Query.DefaultTimeoutSeconds = 30
	cfg.Query.ListTablesTimeoutSeconds = 10
	cfg.Query.DescribeTableTimeoutSeconds = 10
	cfg.Query.MaxResultLength = 100000
	cfg.Query.DefaultLimit = 100
	cfg.Query.MaxLimit = 1000
	cfg.Protection.MaxAffectedRows = 1000
}

var (
	sslModes   = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
	errorKinds = []string{"", "validation_error", "security_error", "query_error"}
)

func writeConfig(configPath string, cfg *pgmcp.ServerConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", configPath, err)
	}
	return nil
}

// intCheck returns a message describing why v is invalid, or "".
type intCheck func(v int) string

func positive(v int) string {
	if v <= 0 {
		return "Value must be > 0"
	}
	return ""
}

func nonNegative(v int) string {
	if v < 0 {
		return "Value must be >= 0"
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// prompter handles reading user input and displaying prompts.
type prompter struct {
	scanner *bufio.Scanner
	output  io.Writer
	isNew   bool
}

func (p *prompter) readLine() string {
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	return ""
}

func (p *prompter) section(title string) {
	fmt.Fprintf(p.output, "\n=== %s ===\n", title)
}

func (p *prompter) valueLabel() string {
	if p.isNew {
		return "default"
	}
	return "current"
}

// label renders "field [hint] (default: value): ".
func (p *prompter) label(field, hint, current string) string {
	if hint != "" {
		return fmt.Sprintf("%s [%s] (%s: %s): ", field, hint, p.valueLabel(), current)
	}
	return fmt.Sprintf("%s (%s: %s): ", field, p.valueLabel(), current)
}

func (p *prompter) promptString(field, current, hint string) string {
	fmt.Fprint(p.output, p.label(field, hint, strconv.Quote(current)))
	if input := p.readLine(); input != "" {
		return input
	}
	return current
}

func (p *prompter) promptInt(field string, current int, hint string, check intCheck) int {
	for {
		fmt.Fprint(p.output, p.label(field, hint, strconv.Itoa(current)))
		input := p.readLine()
		if input == "" {
			return current
		}
		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
			continue
		}
		if msg := check(val); msg != "" {
			fmt.Fprintf(p.output, "  %s, try again.\n", msg)
			continue
		}
		return val
	}
}

func (p *prompter) promptBool(field string, current bool) bool {
	for {
		fmt.Fprint(p.output, p.label(field, "", strconv.FormatBool(current)))
		input := p.readLine()
		if input == "" {
			return current
		}
		switch strings.ToLower(input) {
		case "true", "t", "yes", "y", "1":
			return true
		case "false", "f", "no", "n", "0":
			return false
		default:
			fmt.Fprintf(p.output, "  Invalid value %q, use true/false/yes/no, try again.\n", input)
		}
	}
}

func (p *prompter) promptDuration(field, current, hint string) string {
	for {
		fmt.Fprint(p.output, p.label(field, hint, strconv.Quote(current)))
		input := p.readLine()
		if input == "" {
			return current
		}
		if _, err := time.ParseDuration(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid Go duration %q, try again.\n", input)
			continue
		}
		return input
	}
}

// promptTimezone also sets the zone used to resolve relative date filters.
func (p *prompter) promptTimezone(current string) string {
	for {
		fmt.Fprint(p.output, p.label("timezone", "e.g. UTC, America/New_York, empty = server default", strconv.Quote(current)))
		input := p.readLine()
		if input == "" {
			return current
		}
		if _, err := time.LoadLocation(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid timezone %q, please enter a valid IANA timezone.\n", input)
			continue
		}
		return input
	}
}

func (p *prompter) promptEnum(field, current string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "%s (%s: %q, options: %s): ", field, p.valueLabel(), current, strings.Join(allowed, ", "))
		input := p.readLine()
		if input == "" {
			return current
		}
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, must be one of: %s\n", input, strings.Join(allowed, ", "))
	}
}

// promptIdentifierList reads a comma-separated list of SQL identifiers.
// "-" clears the list.
func (p *prompter) promptIdentifierList(field string, current []string) []string {
	for {
		fmt.Fprint(p.output, p.label(field, "comma-separated, - = allow all", fmt.Sprintf("%v", current)))
		input := p.readLine()
		switch input {
		case "":
			return current
		case "-":
			return nil
		}
		items := splitList(input)
		valid := true
		for _, item := range items {
			if err := filter.ValidateIdentifier(item); err != nil {
				fmt.Fprintf(p.output, "  Invalid identifier %q, try again.\n", item)
				valid = false
				break
			}
		}
		if valid {
			return items
		}
	}
}

// editList runs the add/remove/continue loop for a list field.
func editList[T any](p *prompter, label string, items []T, describe func(T) string, add func() T) []T {
	for {
		if len(items) == 0 {
			fmt.Fprintf(p.output, "  (no entries)\n")
		}
		for i, item := range items {
			fmt.Fprintf(p.output, "  [%d] %s\n", i, describe(item))
		}
		fmt.Fprintf(p.output, "[a]dd, [r]emove, [c]ontinue? ")
		switch strings.ToLower(p.readLine()) {
		case "a":
			items = append(items, add())
		case "r":
			items = removeByIndex(p, label, items)
		case "c", "":
			return items
		default:
			fmt.Fprintf(p.output, "  Unknown choice, try again.\n")
		}
	}
}

func (p *prompter) promptNewField(name string) string {
	fmt.Fprintf(p.output, "  %s: ", name)
	return p.readLine()
}

func (p *prompter) promptNewEnumField(name string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "  %s (options: %s, empty = any): ", name, strings.Join(allowed[1:], ", "))
		input := p.readLine()
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, try again.\n", input)
	}
}

func (p *prompter) promptNewRegexField(name, hint string) string {
	for {
		if hint != "" {
			fmt.Fprintf(p.output, "  %s (regex, %s): ", name, hint)
		} else {
			fmt.Fprintf(p.output, "  %s (regex): ", name)
		}
		input := p.readLine()
		if input == "" {
			return ""
		}
		if _, err := regexp.Compile(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid regex %q: %v, try again.\n", input, err)
			continue
		}
		return input
	}
}

// promptNewIntField reads an integer for a new list entry. Empty input means
// 0, which must still pass check.
func (p *prompter) promptNewIntField(name, hint string, check intCheck) int {
	for {
		fmt.Fprintf(p.output, "  %s (%s): ", name, hint)
		input := p.readLine()
		val := 0
		if input != "" {
			var err error
			if val, err = strconv.Atoi(input); err != nil {
				fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
				continue
			}
		}
		if msg := check(val); msg != "" {
			fmt.Fprintf(p.output, "  %s, try again.\n", msg)
			continue
		}
		return val
	}
}

func removeByIndex[T any](p *prompter, label string, items []T) []T {
	if len(items) == 0 {
		fmt.Fprintf(p.output, "  No %s entries to remove.\n", label)
		return items
	}
	fmt.Fprintf(p.output, "  Index to remove: ")
	input := p.readLine()
	idx, err := strconv.Atoi(input)
	if err != nil || idx < 0 || idx >= len(items) {
		fmt.Fprintf(p.output, "  Invalid index.\n")
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}
