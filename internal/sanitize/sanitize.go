package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is the sanitizer's own rule type. Columns limits the rule to the named
// result columns (case-insensitive); an empty list applies it everywhere.
type Rule struct {
	Pattern     string
	Replacement string
	Columns     []string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
	columns     map[string]bool
}

func (r compiledRule) appliesTo(column string) bool {
	return len(r.columns) == 0 || r.columns[strings.ToLower(column)]
}

// Sanitizer applies regex-based sanitization to result row values.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer creates a new Sanitizer. Returns an error on invalid regex patterns.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		var cols map[string]bool
		if len(r.Columns) > 0 {
			cols = make(map[string]bool, len(r.Columns))
			for _, c := range r.Columns {
				cols[strings.ToLower(c)] = true
			}
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement, columns: cols}
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules returns true if the sanitizer has any rules configured.
func (s *Sanitizer) HasRules() bool {
	return len(s.rules) > 0
}

// SanitizeRows rewrites string values in place, recursing into JSONB objects
// and arrays. Rows returned by INSERT/UPDATE/DELETE ... RETURNING go through
// the same path as SELECT rows.
func (s *Sanitizer) SanitizeRows(rows []map[string]interface{}) []map[string]interface{} {
	if !s.HasRules() {
		return rows
	}
	for _, row := range rows {
		for col, v := range row {
			row[col] = s.sanitizeColumn(col, v)
		}
	}
	return rows
}

func (s *Sanitizer) sanitizeColumn(column string, v interface{}) interface{} {
	for _, rule := range s.rules {
		if rule.appliesTo(column) {
			v = rule.apply(v)
		}
	}
	return v
}

// sanitizeValue applies every rule regardless of column scope.
func (s *Sanitizer) sanitizeValue(v interface{}) interface{} {
	for _, rule := range s.rules {
		v = rule.apply(v)
	}
	return v
}

func (r compiledRule) apply(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return r.pattern.ReplaceAllString(val, r.replacement)
	case map[string]interface{}:
		for k, item := range val {
			val[k] = r.apply(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = r.apply(item)
		}
		return val
	default:
		// json.Number is a distinct type and does not match the string case.
		return v
	}
}
