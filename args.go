package pgmcp

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/rickchristie/postgres-crud-mcp/filter"
)

// The functions below turn MCP tool arguments (decoded JSON, so numbers are
// float64) into typed inputs. Malformed arguments are validation errors.

func selectInputFromArgs(args map[string]any) (SelectInput, error) {
	in := SelectInput{Filter: args["filter"]}
	var err error
	if in.Schema, in.Table, err = targetArgs(args); err != nil {
		return in, err
	}
	if in.Columns, err = stringListArg(args, "columns"); err != nil {
		return in, err
	}
	if in.OrderBy, err = orderArgs(args); err != nil {
		return in, err
	}
	if in.Limit, err = intArg(args, "limit"); err != nil {
		return in, err
	}
	if in.Offset, err = intArg(args, "offset"); err != nil {
		return in, err
	}
	in.DryRun, err = boolArg(args, "dry_run")
	return in, err
}

func countInputFromArgs(args map[string]any) (CountInput, error) {
	in := CountInput{Filter: args["filter"]}
	var err error
	if in.Schema, in.Table, err = targetArgs(args); err != nil {
		return in, err
	}
	in.DryRun, err = boolArg(args, "dry_run")
	return in, err
}

func insertInputFromArgs(args map[string]any) (InsertInput, error) {
	var in InsertInput
	var err error
	if in.Schema, in.Table, err = targetArgs(args); err != nil {
		return in, err
	}
	switch {
	case args["records"] != nil:
		list, ok := args["records"].([]any)
		if !ok {
			return in, filter.Validationf("records", "records must be an array of objects")
		}
		for i, item := range list {
			rec, ok := item.(map[string]any)
			if !ok {
				return in, filter.Validationf("records", "records[%d] must be an object", i)
			}
			in.Records = append(in.Records, rec)
		}
	case args["record"] != nil:
		rec, ok := args["record"].(map[string]any)
		if !ok {
			return in, filter.Validationf("record", "record must be an object")
		}
		in.Records = []map[string]any{rec}
	default:
		return in, filter.Validationf("records", "records is required")
	}
	if in.Returning, err = stringListArg(args, "returning"); err != nil {
		return in, err
	}
	in.DryRun, err = boolArg(args, "dry_run")
	return in, err
}

func updateInputFromArgs(args map[string]any) (UpdateInput, error) {
	in := UpdateInput{Filter: args["filter"]}
	var err error
	if in.Schema, in.Table, err = targetArgs(args); err != nil {
		return in, err
	}
	set, ok := args["set"].(map[string]any)
	if !ok {
		return in, filter.Validationf("set", "set must be an object of column values")
	}
	in.Set = set
	if in.PrimaryKey, err = stringArg(args, "primary_key"); err != nil {
		return in, err
	}
	if in.ConfirmUnfiltered, err = boolArg(args, "confirm_unfiltered"); err != nil {
		return in, err
	}
	if in.Returning, err = stringListArg(args, "returning"); err != nil {
		return in, err
	}
	in.DryRun, err = boolArg(args, "dry_run")
	return in, err
}

func deleteInputFromArgs(args map[string]any) (DeleteInput, error) {
	in := DeleteInput{Filter: args["filter"]}
	var err error
	if in.Schema, in.Table, err = targetArgs(args); err != nil {
		return in, err
	}
	if in.ConfirmUnfiltered, err = boolArg(args, "confirm_unfiltered"); err != nil {
		return in, err
	}
	if in.Returning, err = stringListArg(args, "returning"); err != nil {
		return in, err
	}
	in.DryRun, err = boolArg(args, "dry_run")
	return in, err
}

func targetArgs(args map[string]any) (schema, table string, err error) {
	if table, err = stringArg(args, "table"); err != nil {
		return "", "", err
	}
	if table == "" {
		return "", "", filter.Validationf("table", "table is required")
	}
	schema, err = stringArg(args, "schema")
	return schema, table, err
}

func stringArg(args map[string]any, key string) (string, error) {
	switch v := args[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	}
	return "", filter.Validationf(key, "%s must be a string", key)
}

func boolArg(args map[string]any, key string) (bool, error) {
	switch v := args[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	}
	return false, filter.Validationf(key, "%s must be a boolean", key)
}

func intArg(args map[string]any, key string) (*int, error) {
	var f float64
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case float64:
		f = v
	case int:
		return &v, nil
	case int64:
		n := int(v)
		return &n, nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, filter.Validationf(key, "%s must be an integer", key)
		}
		n := int(i)
		return &n, nil
	default:
		return nil, filter.Validationf(key, "%s must be an integer", key)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil, filter.Validationf(key, "%s must be an integer", key)
	}
	n := int(f)
	return &n, nil
}

// stringListArg accepts an array of strings or a single comma-separated string.
func stringListArg(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, filter.Validationf(key, "%s[%d] must be a string", key, i)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, filter.Validationf(key, "%s must be an array of strings", key)
}

// orderArgs reads order_by in one of three shapes:
//
//	"created_at" with an optional "ascending": false
//	["-created_at", "name"]
//	[{"field": "created_at", "direction": "desc", "nulls": "last"}]
func orderArgs(args map[string]any) ([]OrderInput, error) {
	raw, ok := args["order_by"]
	if !ok || raw == nil {
		return nil, nil
	}
	if field, ok := raw.(string); ok {
		if field == "" {
			return nil, nil
		}
		asc := true
		if v, ok := args["ascending"].(bool); ok {
			asc = v
		}
		o := orderTerm(field)
		if !asc {
			o.Descending = true
		}
		return []OrderInput{o}, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, filter.Validationf("order_by", "order_by must be a field name or an array")
	}
	orders := make([]OrderInput, 0, len(list))
	for i, item := range list {
		switch v := item.(type) {
		case string:
			orders = append(orders, orderTerm(v))
		case map[string]any:
			field, _ := v["field"].(string)
			if field == "" {
				return nil, filter.Validationf("order_by", "order_by[%d].field is required", i)
			}
			o := OrderInput{Field: field}
			if d, ok := v["descending"].(bool); ok {
				o.Descending = d
			}
			if dir, ok := v["direction"].(string); ok {
				switch strings.ToLower(dir) {
				case "asc":
				case "desc":
					o.Descending = true
				default:
					return nil, filter.Validationf("order_by", "order_by[%d].direction must be \"asc\" or \"desc\"", i)
				}
			}
			o.Nulls, _ = v["nulls"].(string)
			orders = append(orders, o)
		default:
			return nil, filter.Validationf("order_by", "order_by[%d] must be a string or an object", i)
		}
	}
	return orders, nil
}

func orderTerm(s string) OrderInput {
	if strings.HasPrefix(s, "-") {
		return OrderInput{Field: s[1:], Descending: true}
	}
	return OrderInput{Field: s}
}
