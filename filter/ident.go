package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// maxIdentifierLength is PostgreSQL's NAMEDATALEN-1.
const maxIdentifierLength = 63

var (
	identPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	jsonKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	integerPattern = regexp.MustCompile(`^[0-9]+$`)
)

// reservedWords are PostgreSQL reserved key words that must be quoted when
// used as column names.
var reservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "asymmetric": true, "both": true,
	"case": true, "cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "current_catalog": true, "current_date": true,
	"current_role": true, "current_time": true, "current_timestamp": true,
	"current_user": true, "default": true, "deferrable": true, "desc": true,
	"distinct": true, "do": true, "else": true, "end": true, "except": true,
	"false": true, "fetch": true, "for": true, "foreign": true, "from": true,
	"grant": true, "group": true, "having": true, "in": true, "initially": true,
	"intersect": true, "into": true, "lateral": true, "leading": true, "limit": true,
	"localtime": true, "localtimestamp": true, "not": true, "null": true,
	"offset": true, "on": true, "only": true, "or": true, "order": true,
	"placing": true, "primary": true, "references": true, "returning": true,
	"select": true, "session_user": true, "some": true, "symmetric": true,
	"table": true, "then": true, "to": true, "trailing": true, "true": true,
	"union": true, "unique": true, "user": true, "using": true, "variadic": true,
	"when": true, "where": true, "window": true, "with": true,
}

// ValidateIdentifier checks a column, table or schema name. Up to two dots
// are allowed for qualification (schema.table.column).
func ValidateIdentifier(name string) error {
	parts := strings.Split(name, ".")
	if len(parts) > 3 {
		return Securityf("", "identifier %q has too many qualifiers", name)
	}
	for _, part := range parts {
		if !identPattern.MatchString(part) {
			return Securityf("", "identifier %q contains characters outside [A-Za-z0-9_]", name)
		}
		if len(part) > maxIdentifierLength {
			return Securityf("", "identifier %q exceeds %d characters", name, maxIdentifierLength)
		}
	}
	return nil
}

// ParsePath splits a field reference such as "profile->address->city" into
// its column and JSONB keys.
func ParsePath(field string) (Path, error) {
	segments := strings.Split(field, "->")
	if err := ValidateIdentifier(segments[0]); err != nil {
		return Path{}, Securityf("", "unsafe field %q", field)
	}
	p := Path{Column: segments[0]}
	for _, key := range segments[1:] {
		if !jsonKeyPattern.MatchString(key) {
			return Path{}, Securityf("", "unsafe JSON path segment in field %q", field)
		}
		p.Keys = append(p.Keys, key)
	}
	return p, nil
}

func validatePath(p Path, at string) error {
	if err := ValidateIdentifier(p.Column); err != nil {
		return Securityf(at, "unsafe field %q", p.String())
	}
	for _, key := range p.Keys {
		if !jsonKeyPattern.MatchString(key) {
			return Securityf(at, "unsafe JSON path segment in field %q", p.String())
		}
	}
	return nil
}

// QuoteIdentifier renders a validated, possibly qualified identifier. Plain
// lower-case names are emitted bare; reserved words and names with upper-case
// letters are double-quoted so PostgreSQL does not fold or misparse them.
func QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if needsQuoting(part) {
			parts[i] = pgx.Identifier{part}.Sanitize()
		}
	}
	return strings.Join(parts, ".")
}

func needsQuoting(part string) bool {
	return reservedWords[part] || strings.ToLower(part) != part
}

// ColumnSQL validates field and renders it as a text-valued expression,
// suitable for ORDER BY.
func ColumnSQL(field string) (string, error) {
	p, err := ParsePath(field)
	if err != nil {
		return "", err
	}
	return renderPath(p, false), nil
}

// renderPath renders the column and walks JSON keys with "->". The final key
// uses "->>" unless the operator compares JSON values.
func renderPath(p Path, jsonValued bool) string {
	var b strings.Builder
	b.WriteString(QuoteIdentifier(p.Column))
	for i, key := range p.Keys {
		if i == len(p.Keys)-1 && !jsonValued {
			b.WriteString("->>")
		} else {
			b.WriteString("->")
		}
		b.WriteString(jsonKey(key))
	}
	return b.String()
}

// jsonKey renders an array index as an integer and anything else as a string
// literal. Keys are restricted to [A-Za-z0-9_] so no escaping is required.
func jsonKey(key string) string {
	if integerPattern.MatchString(key) && len(key) < 10 {
		return key
	}
	return "'" + key + "'"
}

func quote(s string) string {
	return strconv.Quote(s)
}
