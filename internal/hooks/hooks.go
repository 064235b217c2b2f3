package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// Config is the hook runner's own config type.
type Config struct {
	DefaultTimeout  time.Duration
	BeforeStatement []HookEntry
}

// HookEntry defines a single command-based hook. Pattern is matched against
// the statement target, e.g. "DELETE public.orders".
type HookEntry struct {
	Pattern string
	Command string
	Args    []string
	Timeout time.Duration // 0 means use DefaultTimeout
}

// Result is the JSON response from a before_statement hook. Hooks may only
// accept or reject; the statement itself is never rewritten.
type Result struct {
	Accept       bool   `json:"accept"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type compiledHook struct {
	pattern *regexp.Regexp
	command string
	args    []string
	timeout time.Duration
}

// Runner executes command-based hooks.
type Runner struct {
	before []compiledHook
	logger zerolog.Logger
}

// NewRunner creates a new Runner. Panics on invalid regex or invalid config.
func NewRunner(config Config, logger zerolog.Logger) *Runner {
	if config.DefaultTimeout <= 0 && len(config.BeforeStatement) > 0 {
		panic("hooks: default_hook_timeout_seconds must be > 0 when hooks are configured")
	}

	compiled := make([]compiledHook, len(config.BeforeStatement))
	for i, e := range config.BeforeStatement {
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			panic(fmt.Sprintf("hooks: invalid regex pattern %q: %v", e.Pattern, err))
		}
		if e.Command == "" {
			panic(fmt.Sprintf("hooks: hook with pattern %q has no command", e.Pattern))
		}
		timeout := e.Timeout
		if timeout == 0 {
			timeout = config.DefaultTimeout
		}
		compiled[i] = compiledHook{
			pattern: re,
			command: e.Command,
			args:    e.Args,
			timeout: timeout,
		}
	}

	return &Runner{before: compiled, logger: logger}
}

// HasHooks returns true if any before_statement hooks are configured.
func (r *Runner) HasHooks() bool {
	return len(r.before) > 0
}

// RunBeforeStatement runs every hook whose pattern matches target, in order,
// feeding statement on stdin. The first rejection stops the chain. It returns
// the commands that ran.
func (r *Runner) RunBeforeStatement(ctx context.Context, target string, statement []byte) ([]string, error) {
	var executed []string
	for _, hook := range r.before {
		if !hook.pattern.MatchString(target) {
			continue
		}
		executed = append(executed, hook.command)

		output, err := r.executeHook(ctx, hook, statement)
		if err != nil {
			return executed, fmt.Errorf("before_statement hook error: %w", err)
		}

		var result Result
		if err := json.Unmarshal(output, &result); err != nil {
			return executed, fmt.Errorf("before_statement hook returned unparseable response (command: %s): %w", hook.command, err)
		}
		if !result.Accept {
			msg := "statement rejected by hook"
			if result.ErrorMessage != "" {
				msg = result.ErrorMessage
			}
			return executed, errors.New(msg)
		}
	}
	return executed, nil
}

func (r *Runner) executeHook(ctx context.Context, hook compiledHook, input []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, hook.timeout)
	defer cancel()

	// No shell: the command is executed directly with its args.
	cmd := exec.CommandContext(ctx, hook.command, hook.args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			r.logger.Warn().Str("command", hook.command).Str("stderr", stderr.String()).Msg("hook stderr output")
		}
		// Any failure rejects the statement, including timeouts.
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("hook timed out: %s", hook.command)
		}
		return nil, fmt.Errorf("hook failed (command: %s): %w", hook.command, err)
	}
	if stderr.Len() > 0 {
		r.logger.Debug().Str("command", hook.command).Str("stderr", stderr.String()).Msg("hook stderr output")
	}
	return output, nil
}
