package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is the error prompt matcher's own rule type. Kind, when set, restricts
// the rule to errors of that kind ("validation_error", "security_error",
// "query_error").
type Rule struct {
	Kind    string
	Pattern string
	Message string
}

type compiledRule struct {
	kind    string
	pattern *regexp.Regexp
	message string
}

func (r compiledRule) matches(kind, errMsg string) bool {
	if r.kind != "" && r.kind != kind {
		return false
	}
	return r.pattern.MatchString(errMsg)
}

// Matcher checks error messages against patterns and returns guidance prompts.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a new Matcher. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{kind: r.Kind, pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Match checks the error against all rules, top to bottom, and returns the
// matching prompt messages joined with newlines. Empty when nothing matches.
func (m *Matcher) Match(kind, errMsg string) string {
	var matches []string
	for _, rule := range m.rules {
		if rule.matches(kind, errMsg) {
			matches = append(matches, rule.message)
		}
	}
	return strings.Join(matches, "\n")
}

// MatchedPatterns returns the regex patterns that matched, for logging.
func (m *Matcher) MatchedPatterns(kind, errMsg string) []string {
	var patterns []string
	for _, rule := range m.rules {
		if rule.matches(kind, errMsg) {
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return patterns
}
