package filter

import (
	"encoding/json"
	"errors"
	"strings"
)

// operand is what a compile function sees: the rendered field expression, the
// literal and the modifiers.
type operand struct {
	field string
	value any
	mods  Modifiers
}

type compileFunc func(o operand, a *ParameterAllocator) (string, error)

type operatorSpec struct {
	compile compileFunc
	// jsonValued keeps "->" on the last key of a JSON path.
	jsonValued bool
	// objects allows an object literal as the value.
	objects bool
	// castable casts "->>" text to numeric or boolean when the literal is one.
	castable bool
}

var operators = map[Operator]operatorSpec{
	OpEq:      {compile: comparison("="), castable: true},
	OpNe:      {compile: comparison("<>"), castable: true},
	OpGt:      {compile: comparison(">"), castable: true},
	OpLt:      {compile: comparison("<"), castable: true},
	OpGte:     {compile: comparison(">="), castable: true},
	OpLte:     {compile: comparison("<="), castable: true},
	OpBetween: {compile: compileBetween, castable: true},

	OpLike:   {compile: pattern("LIKE", "ILIKE")},
	OpIlike:  {compile: pattern("ILIKE", "ILIKE")},
	OpMatch:  {compile: pattern("~", "~*")},
	OpImatch: {compile: pattern("~*", "~*")},

	OpIn:  {compile: membership(false), castable: true},
	OpNin: {compile: membership(true), castable: true},
	OpIs:  {compile: compileIs},

	OpContains:      {compile: arrayOp("@>"), jsonValued: true},
	OpContainedBy:   {compile: arrayOp("<@"), jsonValued: true},
	OpOverlap:       {compile: arrayOp("&&"), jsonValued: true},
	OpArrayLength:   {compile: arrayLength("=")},
	OpArrayLengthGt: {compile: arrayLength(">")},
	OpArrayLengthLt: {compile: arrayLength("<")},

	OpJSONBContains:    {compile: jsonbOp("@>"), jsonValued: true, objects: true},
	OpJSONBContainedBy: {compile: jsonbOp("<@"), jsonValued: true, objects: true},
	OpHasKey:           {compile: compileHasKey, jsonValued: true},
	OpHasAnyKeys:       {compile: hasKeys("?|"), jsonValued: true},
	OpHasAllKeys:       {compile: hasKeys("?&"), jsonValued: true},
	OpJSONBPath:        {compile: compileJSONBPath, jsonValued: true},

	OpNear:       {compile: compileNear, objects: true},
	OpWithin:     {compile: shapeOp("<@"), objects: true},
	OpIntersects: {compile: shapeOp("&&"), objects: true},

	OpRelative: {compile: compileRelative},
}

var (
	errObjectLiteral   = errors.New("does not accept an object value")
	errRelativeToken   = errors.New("expects a relative date token")
	errUnknownRelative = errors.New("unrecognized relative date; expected today, yesterday, tomorrow, this|last|next <unit> or last|next N <units>")
)

var operatorAliases = map[string]Operator{
	"neq":    OpNe,
	"not_in": OpNin,
	"notin":  OpNin,
	"regex":  OpMatch,
}

// LookupOperator resolves an operator name case-insensitively. A leading "$"
// is accepted for Mongo-style filters.
func LookupOperator(name string) (Operator, bool) {
	key := strings.ToLower(strings.TrimPrefix(name, "$"))
	if op, ok := operatorAliases[key]; ok {
		return op, true
	}
	op := Operator(key)
	_, ok := operators[op]
	return op, ok
}

func comparison(sym string) compileFunc {
	return func(o operand, a *ParameterAllocator) (string, error) {
		if !isScalar(o.value) {
			return "", errors.New("expects a scalar value")
		}
		if o.value == nil {
			switch sym {
			case "=":
				return o.field + " IS NULL", nil
			case "<>":
				return o.field + " IS NOT NULL", nil
			}
			return "", errors.New("null can only be compared with eq or ne")
		}
		if s, ok := o.value.(string); ok && o.mods.caseInsensitive() && (sym == "=" || sym == "<>") {
			return "lower(" + o.field + ") " + sym + " lower(" + a.Placeholder(s) + ")", nil
		}
		return o.field + " " + sym + " " + a.Placeholder(o.value), nil
	}
}

func compileBetween(o operand, a *ParameterAllocator) (string, error) {
	bounds, ok := o.value.([]any)
	if !ok || len(bounds) != 2 || !isScalar(bounds[0]) || !isScalar(bounds[1]) || bounds[0] == nil || bounds[1] == nil {
		return "", errors.New("expects a [low, high] pair")
	}
	return o.field + " BETWEEN " + a.Placeholder(bounds[0]) + " AND " + a.Placeholder(bounds[1]), nil
}

// pattern renders LIKE-style operators. insensitive is used when the filter
// sets caseSensitive to false.
func pattern(sym, insensitive string) compileFunc {
	return func(o operand, a *ParameterAllocator) (string, error) {
		s, ok := o.value.(string)
		if !ok {
			return "", errors.New("expects a string pattern")
		}
		op := sym
		if o.mods.caseInsensitive() {
			op = insensitive
		}
		return o.field + " " + op + " " + a.Placeholder(s), nil
	}
}

func membership(negated bool) compileFunc {
	return func(o operand, a *ParameterAllocator) (string, error) {
		items, ok := o.value.([]any)
		if !ok {
			return "", errors.New("expects a list of values")
		}
		if len(items) == 0 {
			if negated {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			if !isScalar(item) {
				return "", errors.New("list elements must be scalar values")
			}
			placeholders[i] = a.Placeholder(item)
		}
		kw := " IN ("
		if negated {
			kw = " NOT IN ("
		}
		return o.field + kw + strings.Join(placeholders, ", ") + ")", nil
	}
}

func compileIs(o operand, _ *ParameterAllocator) (string, error) {
	switch v := o.value.(type) {
	case nil:
		return o.field + " IS NULL", nil
	case bool:
		if v {
			return o.field + " IS TRUE", nil
		}
		return o.field + " IS FALSE", nil
	case string:
		switch strings.Join(strings.Fields(strings.ToLower(v)), " ") {
		case "null":
			return o.field + " IS NULL", nil
		case "not null", "notnull", "!null":
			return o.field + " IS NOT NULL", nil
		case "true":
			return o.field + " IS TRUE", nil
		case "false":
			return o.field + " IS FALSE", nil
		}
	}
	return "", errors.New(`expects null, "not null", true or false`)
}

// arrayOp binds the whole list as one array parameter. A scalar is treated as
// a one-element array.
func arrayOp(sym string) compileFunc {
	return func(o operand, a *ParameterAllocator) (string, error) {
		var items []any
		switch v := o.value.(type) {
		case []any:
			items = v
		case map[string]any:
			return "", errors.New("expects an array value")
		default:
			items = []any{v}
		}
		return o.field + " " + sym + " " + a.Placeholder(items), nil
	}
}

func arrayLength(sym string) compileFunc {
	return func(o operand, a *ParameterAllocator) (string, error) {
		n, ok := toInt(o.value)
		if !ok || n < 0 {
			return "", errors.New("expects a non-negative integer")
		}
		return "array_length(" + o.field + ", 1) " + sym + " " + a.Placeholder(n), nil
	}
}

// jsonbOp binds the literal as JSON text so scalars, arrays and objects all
// reach the server as jsonb.
func jsonbOp(sym string) compileFunc {
	return func(o operand, a *ParameterAllocator) (string, error) {
		b, err := json.Marshal(o.value)
		if err != nil {
			return "", errors.New("value is not representable as JSON")
		}
		return o.field + " " + sym + " " + a.Placeholder(string(b)) + "::jsonb", nil
	}
}

func compileHasKey(o operand, a *ParameterAllocator) (string, error) {
	key, ok := o.value.(string)
	if !ok {
		return "", errors.New("expects a key name")
	}
	return o.field + " ? " + a.Placeholder(key), nil
}

func hasKeys(sym string) compileFunc {
	return func(o operand, a *ParameterAllocator) (string, error) {
		var keys []string
		switch v := o.value.(type) {
		case string:
			keys = []string{v}
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return "", errors.New("expects a list of key names")
				}
				keys = append(keys, s)
			}
		default:
			return "", errors.New("expects a list of key names")
		}
		if len(keys) == 0 {
			return "", errors.New("expects at least one key name")
		}
		return o.field + " " + sym + " " + a.Placeholder(keys), nil
	}
}

func compileJSONBPath(o operand, a *ParameterAllocator) (string, error) {
	path, ok := o.value.(string)
	if !ok || path == "" {
		return "", errors.New("expects a jsonpath expression string")
	}
	return o.field + " @@ " + a.Placeholder(path) + "::jsonpath", nil
}

func compileRelative(o operand, a *ParameterAllocator) (string, error) {
	r, ok := o.value.(DateRange)
	if !ok {
		return "", errRelativeToken
	}
	return "(" + o.field + " >= " + a.Placeholder(r.Start) + " AND " + o.field + " < " + a.Placeholder(r.End) + ")", nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return false
	}
	return true
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// castFor returns the cast applied to a "->>" expression so it compares
// against v with the right type.
func castFor(v any) string {
	if items, ok := v.([]any); ok {
		if len(items) == 0 {
			return ""
		}
		v = items[0]
	}
	switch v.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return "numeric"
	case bool:
		return "boolean"
	}
	return ""
}
