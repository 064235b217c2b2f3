package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	pgmcp "github.com/rickchristie/postgres-crud-mcp"
	"github.com/rickchristie/postgres-crud-mcp/internal/meta"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	fs.Parse(os.Args[2:])

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *configPath)
}

func doctor(w io.Writer, useColor bool, configPath string) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "gopgcrud %s\n\n", meta.Version)

	config, ok := doctorValidateConfig(w, useColor, configPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'gopgcrud doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check results.
// Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*pgmcp.ServerConfig, bool) {
	allPassed := true

	data, err := os.ReadFile(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable (%s)", configPath))
		allPassed = false
		return nil, allPassed
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file readable (%s)", configPath))

	var config pgmcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file is valid JSON: %v", err))
		allPassed = false
		return nil, allPassed
	}
	printCheck(w, useColor, true, "Config file is valid JSON")

	if config.Connection.DBName == "" {
		printCheck(w, useColor, false, "connection.dbname is set")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("connection.dbname is set (%s)", config.Connection.DBName))
	}

	if config.Server.Port <= 0 {
		printCheck(w, useColor, false, "server.port is > 0")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("server.port is > 0 (%d)", config.Server.Port))
	}

	if config.Server.HealthCheckEnabled {
		if config.Server.HealthCheckPath == "" {
			printCheck(w, useColor, false, "health_check_path is set (required when health_check_enabled)")
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("health_check_path is set (%s)", config.Server.HealthCheckPath))
		}
	}

	if !doctorCheckLimits(w, useColor, &config) {
		allPassed = false
	}

	regexOK := true
	checkRegex := func(field, pattern string) {
		if _, err := regexp.Compile(pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("%s regex compiles: %v", field, err))
			regexOK = false
			allPassed = false
		}
	}
	for i, rule := range config.ErrorPrompts {
		checkRegex(fmt.Sprintf("error_prompts[%d]", i), rule.Pattern)
	}
	for i, rule := range config.Sanitization {
		checkRegex(fmt.Sprintf("sanitization[%d]", i), rule.Pattern)
	}
	for i, rule := range config.Query.TimeoutRules {
		checkRegex(fmt.Sprintf("timeout_rules[%d]", i), rule.Pattern)
	}
	for i, hook := range config.ServerHooks.BeforeStatement {
		checkRegex(fmt.Sprintf("server_hooks.before_statement[%d]", i), hook.Pattern)
	}
	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	if len(config.ServerHooks.BeforeStatement) > 0 {
		if config.DefaultHookTimeoutSeconds <= 0 {
			printCheck(w, useColor, false, "default_hook_timeout_seconds is > 0 (required with server_hooks)")
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("default_hook_timeout_seconds is > 0 (%d)", config.DefaultHookTimeoutSeconds))
		}
	}

	printProtectionSummary(w, useColor, &config)

	return &config, allPassed
}

// doctorCheckLimits validates the timeout, limit and timezone settings that
// New would otherwise reject with a panic.
func doctorCheckLimits(w io.Writer, useColor bool, config *pgmcp.ServerConfig) bool {
	ok := true
	check := func(pass bool, msg string) {
		printCheck(w, useColor, pass, msg)
		if !pass {
			ok = false
		}
	}

	check(config.Pool.MaxConns > 0, fmt.Sprintf("pool.max_conns is > 0 (%d)", config.Pool.MaxConns))
	check(config.Query.DefaultTimeoutSeconds > 0, fmt.Sprintf("query.default_timeout_seconds is > 0 (%d)", config.Query.DefaultTimeoutSeconds))
	check(config.Query.ListTablesTimeoutSeconds > 0, fmt.Sprintf("query.list_tables_timeout_seconds is > 0 (%d)", config.Query.ListTablesTimeoutSeconds))
	check(config.Query.DescribeTableTimeoutSeconds > 0, fmt.Sprintf("query.describe_table_timeout_seconds is > 0 (%d)", config.Query.DescribeTableTimeoutSeconds))
	if config.Query.MaxLimit > 0 && config.Query.DefaultLimit > config.Query.MaxLimit {
		check(false, fmt.Sprintf("query.default_limit (%d) does not exceed query.max_limit (%d)", config.Query.DefaultLimit, config.Query.MaxLimit))
	}
	if config.Timezone != "" {
		if _, err := time.LoadLocation(config.Timezone); err != nil {
			check(false, fmt.Sprintf("timezone %q is valid: %v", config.Timezone, err))
		} else {
			check(true, fmt.Sprintf("timezone is valid (%s)", config.Timezone))
		}
	}
	return ok
}

// printProtectionSummary lists the write guardrails in effect. These are
// informational and never fail the check.
func printProtectionSummary(w io.Writer, useColor bool, config *pgmcp.ServerConfig) {
	if config.ReadOnly {
		printCheck(w, useColor, true, "Read-only mode: write tools are disabled")
		return
	}
	state := func(allowed bool) string {
		if allowed {
			return "allowed with confirm_unfiltered"
		}
		return "refused"
	}
	printCheck(w, useColor, true, "Unfiltered updates: "+state(config.Protection.AllowUnfilteredUpdate))
	printCheck(w, useColor, true, "Unfiltered deletes: "+state(config.Protection.AllowUnfilteredDelete))
	if config.Protection.MaxAffectedRows > 0 {
		printCheck(w, useColor, true, fmt.Sprintf("Writes affecting more than %d rows are rolled back", config.Protection.MaxAffectedRows))
	}
	if len(config.Protection.AllowedSchemas) > 0 {
		printCheck(w, useColor, true, fmt.Sprintf("Allowed schemas: %v", config.Protection.AllowedSchemas))
	}
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

// agentSnippet is the MCP client config for one agent. Body is printed with
// the server URL substituted for %s.
type agentSnippet struct {
	title string
	body  string
}

var agentSnippets = []agentSnippet{
	{"Copilot CLI (~/.copilot/mcp-config.json)", `  {
    "mcpServers": {
      "postgres": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`},
	{"Gemini CLI (~/.gemini/settings.json)", `  {
    "mcpServers": {
      "postgres": {
        "httpUrl": "%s"
      }
    }
  }
`},
	{"OpenCode (opencode.json)", `  {
    "mcp": {
      "postgres": {
        "type": "remote",
        "url": "%s"
      }
    }
  }
`},
	{"Cursor (.cursor/mcp.json)", `  {
    "mcpServers": {
      "postgres": {
        "url": "%s"
      }
    }
  }
`},
	{"Windsurf (~/.codeium/windsurf/mcp_config.json)", `  {
    "mcpServers": {
      "postgres": {
        "serverUrl": "%s"
      }
    }
  }
`},
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *pgmcp.ServerConfig) {
	url := fmt.Sprintf("http://localhost:%d/mcp", config.Server.Port)

	heading := "Agent Connection Snippets"
	if useColor {
		heading = "\033[1;36m" + heading + "\033[0m"
	}
	fmt.Fprintln(w, heading)
	fmt.Fprintln(w)

	subheading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
		} else {
			fmt.Fprintf(w, "  %s\n", title)
		}
	}

	subheading("Claude Code")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add --transport http postgres %s\n\n", url)
	fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
	fmt.Fprintf(w, agentSnippets[0].body, url)

	for _, s := range agentSnippets {
		fmt.Fprintln(w)
		subheading(s.title)
		fmt.Fprintf(w, s.body, url)
	}
}
