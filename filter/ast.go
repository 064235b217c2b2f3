package filter

import "strings"

const (
	// MaxDepth is the deepest allowed nesting of and/or/not combinators.
	MaxDepth = 5
	// MaxConditions is the largest number of field conditions in one filter.
	MaxConditions = 50
)

// Node is either a *FieldCondition or a *LogicalGroup.
type Node interface {
	node()
}

// Operator is a canonical, lower-case operator tag.
type Operator string

const (
	OpEq               Operator = "eq"
	OpNe               Operator = "ne"
	OpGt               Operator = "gt"
	OpLt               Operator = "lt"
	OpGte              Operator = "gte"
	OpLte              Operator = "lte"
	OpBetween          Operator = "between"
	OpLike             Operator = "like"
	OpIlike            Operator = "ilike"
	OpMatch            Operator = "match"
	OpImatch           Operator = "imatch"
	OpIn               Operator = "in"
	OpNin              Operator = "nin"
	OpIs               Operator = "is"
	OpContains         Operator = "contains"
	OpContainedBy      Operator = "contained_by"
	OpOverlap          Operator = "overlap"
	OpArrayLength      Operator = "array_length"
	OpArrayLengthGt    Operator = "array_length_gt"
	OpArrayLengthLt    Operator = "array_length_lt"
	OpJSONBContains    Operator = "jsonb_contains"
	OpJSONBContainedBy Operator = "jsonb_contained_by"
	OpHasKey           Operator = "has_key"
	OpHasAnyKeys       Operator = "has_any_keys"
	OpHasAllKeys       Operator = "has_all_keys"
	OpJSONBPath        Operator = "jsonb_path"
	OpNear             Operator = "near"
	OpWithin           Operator = "within"
	OpIntersects       Operator = "intersects"
	OpRelative         Operator = "relative"
)

// Modifiers adjust how a single condition is rendered.
type Modifiers struct {
	// CaseSensitive is nil unless the filter set it explicitly.
	CaseSensitive *bool
	Negate        bool
}

func (m Modifiers) caseInsensitive() bool {
	return m.CaseSensitive != nil && !*m.CaseSensitive
}

// Path is a parsed field reference: a possibly qualified column plus the JSONB
// keys to walk from it.
type Path struct {
	Column string
	Keys   []string
}

func (p Path) String() string {
	if len(p.Keys) == 0 {
		return p.Column
	}
	return p.Column + "->" + strings.Join(p.Keys, "->")
}

// IsJSON reports whether the path walks into a JSONB document.
func (p Path) IsJSON() bool {
	return len(p.Keys) > 0
}

// FieldCondition is a single predicate on a field.
type FieldCondition struct {
	Field     Path
	Operator  Operator
	Value     any
	Modifiers Modifiers
}

// GroupKind is the combinator of a LogicalGroup.
type GroupKind string

const (
	GroupAnd GroupKind = "AND"
	GroupOr  GroupKind = "OR"
	GroupNot GroupKind = "NOT"
)

// LogicalGroup combines child nodes. NOT groups have exactly one child.
type LogicalGroup struct {
	Kind     GroupKind
	Children []Node

	// implicit marks the AND formed by sibling keys of one filter object.
	// It does not count toward MaxDepth.
	implicit bool
}

func (*FieldCondition) node() {}
func (*LogicalGroup) node()   {}

// Validate checks limits and identifiers of a tree that was built by hand
// rather than by Parse or Normalize.
func Validate(n Node) error {
	conditions := 0
	return validateNode(n, "", 0, &conditions)
}

func validateNode(n Node, path string, depth int, conditions *int) error {
	switch n := n.(type) {
	case nil:
		return nil
	case *FieldCondition:
		*conditions++
		if *conditions > MaxConditions {
			return limitError(path, "max_conditions", MaxConditions)
		}
		if err := validatePath(n.Field, path); err != nil {
			return err
		}
		if _, ok := operators[n.Operator]; !ok {
			return &Error{
				Kind:     KindValidation,
				Path:     path,
				Field:    n.Field.String(),
				Operator: string(n.Operator),
				Message:  "unknown operator " + quote(string(n.Operator)) + " on field " + quote(n.Field.String()),
			}
		}
		return nil
	case *LogicalGroup:
		next := depth
		if !n.implicit {
			next++
		}
		if next > MaxDepth {
			return limitError(path, "max_depth", MaxDepth)
		}
		switch n.Kind {
		case GroupAnd, GroupOr:
			if len(n.Children) == 0 {
				return Validationf(path, "%s group requires at least one child", strings.ToLower(string(n.Kind)))
			}
		case GroupNot:
			if len(n.Children) != 1 {
				return Validationf(path, "not group requires exactly one child")
			}
		default:
			return Validationf(path, "unknown group kind %q", n.Kind)
		}
		key := strings.ToLower(string(n.Kind))
		for i, child := range n.Children {
			childPath := path
			if !n.implicit {
				childPath = indexPath(joinPath(path, key), i)
			}
			if err := validateNode(child, childPath, next, conditions); err != nil {
				return err
			}
		}
		return nil
	default:
		return Validationf(path, "unsupported node type %T", n)
	}
}
