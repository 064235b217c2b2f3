package filter

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

// member is one key of a filter object. Filter objects are kept as ordered
// member lists so that conditions compile in document order.
type member struct {
	key   string
	value any
}

type object []member

// Parse normalizes a raw JSON filter document. Key order is preserved, so the
// compiled placeholders follow the order in which fields appear. An empty
// document, "null" or "{}" yields a nil Node.
func Parse(data []byte) (Node, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, Validationf("", "filter is not valid JSON")
	}
	raw, vt, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, Validationf("", "filter is not valid JSON: %v", err)
	}
	v, err := decodeJSON(raw, vt)
	if err != nil {
		return nil, Validationf("", "filter is not valid JSON: %v", err)
	}
	return normalizeRoot(v)
}

// Normalize normalizes an already decoded filter, typically a
// map[string]any from an MCP tool call. Go maps carry no order, so keys are
// visited in sorted order.
func Normalize(raw any) (Node, error) {
	return normalizeRoot(fromGo(raw))
}

func normalizeRoot(v any) (Node, error) {
	if v == nil {
		return nil, nil
	}
	obj, ok := v.(object)
	if !ok {
		return nil, Validationf("", "filter must be a JSON object")
	}
	n := &normalizer{}
	return n.object(obj, "", 0)
}

func decodeJSON(data []byte, vt jsonparser.ValueType) (any, error) {
	switch vt {
	case jsonparser.Object:
		obj := object{}
		// ObjectEach hands over keys already unescaped.
		err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
			v, err := decodeJSON(value, dataType)
			if err != nil {
				return err
			}
			obj = append(obj, member{key: string(key), value: v})
			return nil
		})
		return obj, err
	case jsonparser.Array:
		items := []any{}
		var inner error
		_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
			if inner != nil {
				return
			}
			if err != nil {
				inner = err
				return
			}
			v, err := decodeJSON(value, dataType)
			if err != nil {
				inner = err
				return
			}
			items = append(items, v)
		})
		if err == nil {
			err = inner
		}
		return items, err
	case jsonparser.String:
		return jsonparser.ParseString(data)
	case jsonparser.Number:
		if i, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			return i, nil
		}
		return jsonparser.ParseFloat(data)
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(data)
	case jsonparser.Null:
		return nil, nil
	}
	return nil, Validationf("", "unexpected JSON token")
}

// fromGo converts decoded Go values into the ordered representation.
func fromGo(v any) any {
	switch val := v.(type) {
	case object:
		return val
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(object, 0, len(keys))
		for _, k := range keys {
			obj = append(obj, member{key: k, value: fromGo(val[k])})
		}
		return obj
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = fromGo(item)
		}
		return items
	case []string:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = item
		}
		return items
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int:
		return int64(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
	}
	return v
}

// toPlain converts ordered objects back into maps for operators that take a
// structured literal.
func toPlain(v any) any {
	switch val := v.(type) {
	case object:
		m := make(map[string]any, len(val))
		for _, mem := range val {
			m[mem.key] = toPlain(mem.value)
		}
		return m
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = toPlain(item)
		}
		return items
	}
	return v
}

type normalizer struct {
	conditions int
}

func (n *normalizer) object(obj object, path string, depth int) (Node, error) {
	var children []Node
	for _, m := range obj {
		switch strings.ToLower(m.key) {
		case "and", "or":
			group, err := n.group(m, path, depth)
			if err != nil {
				return nil, err
			}
			children = append(children, group)
		case "not":
			at := joinPath(path, m.key)
			if depth+1 > MaxDepth {
				return nil, limitError(at, "max_depth", MaxDepth)
			}
			inner, ok := m.value.(object)
			if !ok {
				return nil, Validationf(at, "not expects a single filter object")
			}
			child, err := n.object(inner, at, depth+1)
			if err != nil {
				return nil, err
			}
			if child == nil {
				return nil, Validationf(at, "not requires a non-empty filter")
			}
			children = append(children, &LogicalGroup{Kind: GroupNot, Children: []Node{child}})
		default:
			conds, err := n.field(m, path)
			if err != nil {
				return nil, err
			}
			children = append(children, conds...)
		}
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	}
	return &LogicalGroup{Kind: GroupAnd, Children: children, implicit: true}, nil
}

func (n *normalizer) group(m member, path string, depth int) (Node, error) {
	key := strings.ToLower(m.key)
	at := joinPath(path, m.key)
	if depth+1 > MaxDepth {
		return nil, limitError(at, "max_depth", MaxDepth)
	}
	var items []any
	switch v := m.value.(type) {
	case []any:
		items = v
	case object:
		items = []any{v}
	default:
		return nil, Validationf(at, "%s expects an array of filters", key)
	}
	kind := GroupAnd
	if key == "or" {
		kind = GroupOr
	}
	group := &LogicalGroup{Kind: kind}
	for i, item := range items {
		itemPath := indexPath(at, i)
		inner, ok := item.(object)
		if !ok {
			return nil, Validationf(itemPath, "%s elements must be filter objects", key)
		}
		child, err := n.object(inner, itemPath, depth+1)
		if err != nil {
			return nil, err
		}
		if child != nil {
			group.Children = append(group.Children, child)
		}
	}
	if len(group.Children) == 0 {
		return nil, Validationf(at, "%s requires at least one non-empty filter", key)
	}
	return group, nil
}

// field normalizes one field entry. A scalar is shorthand for eq, a list for
// in, and an object is an operator map.
func (n *normalizer) field(m member, path string) ([]Node, error) {
	at := joinPath(path, m.key)
	p, err := ParsePath(m.key)
	if err != nil {
		return nil, Securityf(at, "unsafe field %q", m.key)
	}

	ops, ok := m.value.(object)
	if !ok {
		op := OpEq
		if _, isList := m.value.([]any); isList {
			op = OpIn
		}
		cond, err := n.condition(p, op, m.value, Modifiers{}, at)
		if err != nil {
			return nil, err
		}
		return []Node{cond}, nil
	}

	var mods Modifiers
	var entries []member
	for _, e := range ops {
		switch strings.ToLower(e.key) {
		case "casesensitive", "case_sensitive":
			b, ok := e.value.(bool)
			if !ok {
				return nil, Validationf(joinPath(at, e.key), "caseSensitive must be a boolean")
			}
			mods.CaseSensitive = &b
		case "negate":
			b, ok := e.value.(bool)
			if !ok {
				return nil, Validationf(joinPath(at, e.key), "negate must be a boolean")
			}
			mods.Negate = b
		default:
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil, Validationf(at, "operator map for field %q has no operators", m.key)
	}

	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		opPath := joinPath(at, e.key)
		name := strings.ToLower(strings.TrimPrefix(e.key, "$"))
		value := e.value
		var op Operator
		if relativeAbbreviations[name] {
			token, err := expandRelative(name, value)
			if err != nil {
				return nil, operatorError(opPath, m.key, e.key, err)
			}
			op, value = OpRelative, token
		} else {
			var known bool
			op, known = LookupOperator(e.key)
			if !known {
				return nil, &Error{
					Kind:     KindValidation,
					Path:     opPath,
					Field:    m.key,
					Operator: e.key,
					Message:  "unknown operator " + quote(e.key) + " on field " + quote(m.key),
				}
			}
		}
		if _, isObj := value.(object); isObj && !operators[op].objects {
			return nil, operatorError(opPath, m.key, e.key, errObjectLiteral)
		}
		cond, err := n.condition(p, op, value, mods, opPath)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, cond)
	}
	return nodes, nil
}

func (n *normalizer) condition(p Path, op Operator, value any, mods Modifiers, at string) (*FieldCondition, error) {
	n.conditions++
	if n.conditions > MaxConditions {
		return nil, limitError(at, "max_conditions", MaxConditions)
	}
	return &FieldCondition{Field: p, Operator: op, Value: toPlain(value), Modifiers: mods}, nil
}
