package configure

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgmcp "github.com/rickchristie/postgres-crud-mcp"
)

// Prompt index map:
//
//	0-3:   connection (host, port, dbname, sslmode)
//	4-6:   server (port, health_check_enabled, health_check_path)
//	7-9:   logging (level, format, output)
//	10-14: pool (max_conns, min_conns, max_conn_lifetime, max_conn_idle_time, health_check_period)
//	15-20: query (default_timeout, list_tables_timeout, describe_table_timeout, max_result_length, default_limit, max_limit)
//	21-23: general (read_only, timezone, default_hook_timeout)
//	24-27: protection (allow_unfiltered_update, allow_unfiltered_delete, max_affected_rows, allowed_schemas)
//	28-31: list editors (timeout_rules, error_prompts, sanitization, before_statement hooks)
const promptCount = 32

const (
	idxDBName          = 2
	idxDefaultLimit    = 19
	idxMaxLimit        = 20
	idxReadOnly        = 21
	idxTimezone        = 22
	idxHookTimeout     = 23
	idxAllowUpdate     = 24
	idxAllowDelete     = 25
	idxMaxAffected     = 26
	idxAllowedSchemas  = 27
	idxTimeoutRules    = 28
	idxErrorPrompts    = 29
	idxSanitization    = 30
	idxBeforeStatement = 31
)

// allEnterInputs returns one line per prompt, each accepting the current
// value unless overridden. List editors get "c".
func allEnterInputs(overrides map[int]string) string {
	lines := make([]string, promptCount)
	for i := idxTimeoutRules; i < promptCount; i++ {
		lines[i] = "c"
	}
	for k, v := range overrides {
		lines[k] = v
	}
	return strings.Join(lines, "\n") + "\n"
}

func runWizard(t *testing.T, configPath, input string) (pgmcp.ServerConfig, string) {
	t.Helper()
	var output bytes.Buffer
	if err := run(configPath, strings.NewReader(input), &output); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	var cfg pgmcp.ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to unmarshal config: %v", err)
	}
	return cfg, output.String()
}

func writeExisting(t *testing.T, cfg *pgmcp.ServerConfig) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := writeConfig(configPath, cfg); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	return configPath
}

// validExistingConfig returns a ServerConfig whose every prompted field is
// valid, so pressing Enter preserves them.
func validExistingConfig() *pgmcp.ServerConfig {
	cfg := &pgmcp.ServerConfig{}
	applyDefaults(cfg)
	cfg.Connection.DBName = "testdb"
	return cfg
}

func TestRun_NewConfig_DefaultsWrittenToFile(t *testing.T) {
	t.Parallel()
	configPath := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, out := runWizard(t, configPath, allEnterInputs(map[int]string{idxDBName: "testdb"}))

	if strings.Contains(out, "(current:") {
		t.Errorf("new config should use 'default' label, output:\n%s", out)
	}
	for _, want := range []string{
		`connection.host (default: "localhost")`,
		"connection.port [must be > 0] (default: 5432)",
		"connection.dbname [required]",
		"query.default_limit [rows returned when select_records has no limit, 0 = none] (default: 100)",
		"query.max_limit [cap on any select_records limit, 0 = none] (default: 1000)",
		"protection.allow_unfiltered_delete (default: false)",
		"protection.max_affected_rows [writes touching more rows are rolled back, 0 = unlimited] (default: 1000)",
		"=== Server Hooks: Before Statement ===",
		"Configuration saved to " + configPath,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	if cfg.Connection.Host != "localhost" || cfg.Connection.Port != 5432 || cfg.Connection.DBName != "testdb" {
		t.Errorf("unexpected connection: %+v", cfg.Connection)
	}
	if cfg.Server.Port != 8080 || cfg.Pool.MaxConns != 5 {
		t.Errorf("unexpected server/pool: %+v %+v", cfg.Server, cfg.Pool)
	}
	if cfg.Query.DefaultTimeoutSeconds != 30 || cfg.Query.MaxResultLength != 100000 {
		t.Errorf("unexpected query: %+v", cfg.Query)
	}
	if cfg.Query.DefaultLimit != 100 || cfg.Query.MaxLimit != 1000 {
		t.Errorf("expected limits 100/1000, got %d/%d", cfg.Query.DefaultLimit, cfg.Query.MaxLimit)
	}
	if cfg.Protection.AllowUnfilteredUpdate || cfg.Protection.AllowUnfilteredDelete {
		t.Errorf("unfiltered writes must default to refused: %+v", cfg.Protection)
	}
	if cfg.Protection.MaxAffectedRows != 1000 {
		t.Errorf("expected max_affected_rows 1000, got %d", cfg.Protection.MaxAffectedRows)
	}
}

func TestRun_ExistingConfig_ShowsCurrentLabelAndPreserves(t *testing.T) {
	t.Parallel()
	existing := validExistingConfig()
	existing.Protection.AllowedSchemas = []string{"public", "sales"}
	existing.Timezone = "Asia/Tokyo"
	configPath := writeExisting(t, existing)

	cfg, out := runWizard(t, configPath, allEnterInputs(nil))

	if strings.Contains(out, "(default:") {
		t.Errorf("existing config should use 'current' label, output:\n%s", out)
	}
	if !strings.Contains(out, "protection.allowed_schemas [comma-separated, - = allow all] (current: [public sales])") {
		t.Errorf("expected allowed_schemas prompt with current value, output:\n%s", out)
	}
	if len(cfg.Protection.AllowedSchemas) != 2 || cfg.Protection.AllowedSchemas[1] != "sales" {
		t.Errorf("expected allowed_schemas preserved, got %v", cfg.Protection.AllowedSchemas)
	}
	if cfg.Timezone != "Asia/Tokyo" {
		t.Errorf("expected timezone preserved, got %q", cfg.Timezone)
	}
}

func TestRun_ProtectionAndGeneralOverrides(t *testing.T) {
	t.Parallel()
	configPath := writeExisting(t, validExistingConfig())

	cfg, _ := runWizard(t, configPath, allEnterInputs(map[int]string{
		idxReadOnly:       "yes",
		idxTimezone:       "Europe/Berlin",
		idxHookTimeout:    "7",
		idxAllowUpdate:    "n",
		idxAllowDelete:    "y",
		idxMaxAffected:    "250",
		idxAllowedSchemas: "public, sales",
	}))

	if !cfg.ReadOnly {
		t.Error("expected read_only true")
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Errorf("expected timezone Europe/Berlin, got %q", cfg.Timezone)
	}
	if cfg.DefaultHookTimeoutSeconds != 7 {
		t.Errorf("expected hook timeout 7, got %d", cfg.DefaultHookTimeoutSeconds)
	}
	if cfg.Protection.AllowUnfilteredUpdate || !cfg.Protection.AllowUnfilteredDelete {
		t.Errorf("unexpected unfiltered flags: %+v", cfg.Protection)
	}
	if cfg.Protection.MaxAffectedRows != 250 {
		t.Errorf("expected max_affected_rows 250, got %d", cfg.Protection.MaxAffectedRows)
	}
	if strings.Join(cfg.Protection.AllowedSchemas, ",") != "public,sales" {
		t.Errorf("expected allowed_schemas [public sales], got %v", cfg.Protection.AllowedSchemas)
	}
}

func TestRun_AllowedSchemasClearAndRetry(t *testing.T) {
	t.Parallel()
	existing := validExistingConfig()
	existing.Protection.AllowedSchemas = []string{"public"}
	configPath := writeExisting(t, existing)

	lines := strings.Split(strings.TrimSuffix(allEnterInputs(nil), "\n"), "\n")
	// An invalid identifier is re-prompted, then "-" clears the list.
	lines = append(lines[:idxAllowedSchemas], append([]string{"bad-name", "-"}, lines[idxAllowedSchemas+1:]...)...)
	cfg, out := runWizard(t, configPath, strings.Join(lines, "\n")+"\n")

	if !strings.Contains(out, `Invalid identifier "bad-name"`) {
		t.Errorf("expected invalid identifier message, output:\n%s", out)
	}
	if len(cfg.Protection.AllowedSchemas) != 0 {
		t.Errorf("expected allowed_schemas cleared, got %v", cfg.Protection.AllowedSchemas)
	}
}

func TestRun_MaxLimitBelowDefaultLimitReprompts(t *testing.T) {
	t.Parallel()
	configPath := writeExisting(t, validExistingConfig())

	lines := strings.Split(strings.TrimSuffix(allEnterInputs(map[int]string{idxDefaultLimit: "200"}), "\n"), "\n")
	lines = append(lines[:idxMaxLimit], append([]string{"50", "500"}, lines[idxMaxLimit+1:]...)...)
	cfg, out := runWizard(t, configPath, strings.Join(lines, "\n")+"\n")

	if !strings.Contains(out, "Value must be >= query.default_limit (200), try again.") {
		t.Errorf("expected max_limit validation message, output:\n%s", out)
	}
	if cfg.Query.DefaultLimit != 200 || cfg.Query.MaxLimit != 500 {
		t.Errorf("expected limits 200/500, got %d/%d", cfg.Query.DefaultLimit, cfg.Query.MaxLimit)
	}
}

func TestRun_InvalidIntegerReprompts(t *testing.T) {
	t.Parallel()
	configPath := writeExisting(t, validExistingConfig())

	lines := strings.Split(strings.TrimSuffix(allEnterInputs(nil), "\n"), "\n")
	// connection.port: "abc", then "0", then "6543".
	lines = append(lines[:1], append([]string{"abc", "0", "6543"}, lines[2:]...)...)
	cfg, out := runWizard(t, configPath, strings.Join(lines, "\n")+"\n")

	if !strings.Contains(out, `Invalid integer "abc", try again.`) {
		t.Errorf("expected invalid integer message, output:\n%s", out)
	}
	if !strings.Contains(out, "Value must be > 0, try again.") {
		t.Errorf("expected positive value message, output:\n%s", out)
	}
	if cfg.Connection.Port != 6543 {
		t.Errorf("expected port 6543, got %d", cfg.Connection.Port)
	}
}

func TestRun_ListEditors(t *testing.T) {
	t.Parallel()
	configPath := writeExisting(t, validExistingConfig())

	lines := strings.Split(strings.TrimSuffix(allEnterInputs(map[int]string{idxHookTimeout: "5"}), "\n"), "\n")
	head := lines[:idxTimeoutRules]
	editors := []string{
		// timeout rules
		"a", `^SELECT analytics\.`, "60", "c",
		// error prompts: bad kind is re-prompted
		"a", "nope", "security_error", "without WHERE", "Add a filter or set confirm_unfiltered.", "c",
		// sanitization
		"a", `\d{3}-\d{4}`, "***-****", "phone, mobile", "mask phones", "c",
		// before_statement hooks: add two, remove the first
		"a", "^DELETE ", "/usr/local/bin/authz", "--strict, --audit", "3",
		"a", "^UPDATE ", "/usr/local/bin/authz", "", "",
		"r", "0", "c",
	}
	input := strings.Join(append(head, editors...), "\n") + "\n"
	cfg, out := runWizard(t, configPath, input)

	if len(cfg.Query.TimeoutRules) != 1 || cfg.Query.TimeoutRules[0].TimeoutSeconds != 60 {
		t.Errorf("unexpected timeout rules: %+v", cfg.Query.TimeoutRules)
	}
	if len(cfg.ErrorPrompts) != 1 || cfg.ErrorPrompts[0].Kind != "security_error" || cfg.ErrorPrompts[0].Pattern != "without WHERE" {
		t.Errorf("unexpected error prompts: %+v", cfg.ErrorPrompts)
	}
	if !strings.Contains(out, `Invalid value "nope", try again.`) {
		t.Errorf("expected invalid kind message, output:\n%s", out)
	}
	if len(cfg.Sanitization) != 1 || strings.Join(cfg.Sanitization[0].Columns, ",") != "phone,mobile" {
		t.Errorf("unexpected sanitization: %+v", cfg.Sanitization)
	}
	if len(cfg.ServerHooks.BeforeStatement) != 1 {
		t.Fatalf("expected 1 hook after removal, got %+v", cfg.ServerHooks.BeforeStatement)
	}
	hook := cfg.ServerHooks.BeforeStatement[0]
	if hook.Pattern != "^UPDATE " || len(hook.Args) != 0 || hook.TimeoutSeconds != 0 {
		t.Errorf("unexpected remaining hook: %+v", hook)
	}
	if strings.Contains(out, "Warning: default_hook_timeout_seconds") {
		t.Errorf("unexpected hook timeout warning, output:\n%s", out)
	}
}

func TestRun_HooksWithoutDefaultTimeoutWarns(t *testing.T) {
	t.Parallel()
	configPath := writeExisting(t, validExistingConfig())

	lines := strings.Split(strings.TrimSuffix(allEnterInputs(nil), "\n"), "\n")
	head := lines[:idxBeforeStatement]
	input := strings.Join(append(head, "a", ".*", "/bin/true", "", "", "c"), "\n") + "\n"
	_, out := runWizard(t, configPath, input)

	if !strings.Contains(out, "Warning: default_hook_timeout_seconds must be > 0 when server hooks are configured.") {
		t.Errorf("expected hook timeout warning, output:\n%s", out)
	}
}

func TestRun_InvalidRegexReprompts(t *testing.T) {
	t.Parallel()
	configPath := writeExisting(t, validExistingConfig())

	lines := strings.Split(strings.TrimSuffix(allEnterInputs(nil), "\n"), "\n")
	head := lines[:idxTimeoutRules]
	input := strings.Join(append(head, "a", "([", "^DELETE ", "15", "c", "c", "c", "c"), "\n") + "\n"
	cfg, out := runWizard(t, configPath, input)

	if !strings.Contains(out, `Invalid regex "(["`) {
		t.Errorf("expected invalid regex message, output:\n%s", out)
	}
	if len(cfg.Query.TimeoutRules) != 1 || cfg.Query.TimeoutRules[0].Pattern != "^DELETE " {
		t.Errorf("unexpected timeout rules: %+v", cfg.Query.TimeoutRules)
	}
}

func TestRun_CorruptExistingConfigStillLoads(t *testing.T) {
	t.Parallel()
	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(configPath, []byte(`{"connection": {"dbname": "kept"}, "server": `), 0644); err != nil {
		t.Fatal(err)
	}

	// Unparseable files count as existing, so no defaults are applied and
	// the positive fields need values.
	cfg, out := runWizard(t, configPath, allEnterInputs(map[int]string{
		1: "5432", 4: "8080", 10: "3", 15: "30", 16: "10", 17: "10", 18: "1000",
	}))
	if !strings.Contains(out, "(current:") {
		t.Errorf("expected current labels, output:\n%s", out)
	}
	if cfg.Pool.MaxConns != 3 {
		t.Errorf("expected max_conns 3, got %d", cfg.Pool.MaxConns)
	}
}

func TestRemoveByIndex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		items []string
		input string
		want  []string
	}{
		{"remove middle", []string{"a", "b", "c"}, "1", []string{"a", "c"}},
		{"out of range", []string{"a"}, "3", []string{"a"}},
		{"not a number", []string{"a"}, "x", []string{"a"}},
		{"empty", nil, "0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			p := &prompter{scanner: bufio.NewScanner(strings.NewReader(tt.input + "\n")), output: &out}
			got := removeByIndex(p, "entry", tt.items)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("removeByIndex() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	if got := splitList(" a, ,b ,c"); strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("splitList() = %v", got)
	}
	if got := splitList(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
