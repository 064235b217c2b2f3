package filter

import (
	"strings"
	"time"
)

// CompiledCondition is a WHERE fragment plus the parameters it allocated. An
// empty SQL string means the filter had no conditions.
type CompiledCondition struct {
	SQL        string
	Parameters []any
}

func (c CompiledCondition) IsEmpty() bool {
	return c.SQL == ""
}

// Compiler turns a normalized filter into SQL. It holds no per-call state and
// is safe for concurrent use.
type Compiler struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithClock sets the clock used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) {
		c.now = now
	}
}

// WithLocation sets the time zone that day, week, month and year boundaries
// are aligned to.
func WithLocation(loc *time.Location) Option {
	return func(c *Compiler) {
		c.loc = loc
	}
}

func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile renders node, allocating its parameters from alloc. The returned
// Parameters are only those allocated by this call.
func (c *Compiler) Compile(node Node, alloc *ParameterAllocator) (CompiledCondition, error) {
	if err := Validate(node); err != nil {
		return CompiledCondition{}, err
	}
	start := alloc.Len()
	sql, err := c.compileNode(node, alloc, "")
	if err != nil {
		return CompiledCondition{}, err
	}
	return CompiledCondition{SQL: sql, Parameters: alloc.Parameters()[start:]}, nil
}

func (c *Compiler) compileNode(node Node, alloc *ParameterAllocator, path string) (string, error) {
	switch n := node.(type) {
	case nil:
		return "", nil
	case *FieldCondition:
		return c.compileCondition(n, alloc, joinPath(path, n.Field.String()))
	case *LogicalGroup:
		return c.compileGroup(n, alloc, path)
	}
	return "", Validationf(path, "unsupported node type %T", node)
}

func (c *Compiler) compileGroup(g *LogicalGroup, alloc *ParameterAllocator, path string) (string, error) {
	key := strings.ToLower(string(g.Kind))
	parts := make([]string, 0, len(g.Children))
	for i, child := range g.Children {
		childPath := path
		if !g.implicit {
			childPath = indexPath(joinPath(path, key), i)
		}
		sql, err := c.compileNode(child, alloc, childPath)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if g.Kind == GroupNot {
		return "NOT (" + parts[0] + ")", nil
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " "+string(g.Kind)+" ") + ")", nil
}

func (c *Compiler) compileCondition(fc *FieldCondition, alloc *ParameterAllocator, path string) (string, error) {
	spec := operators[fc.Operator]
	field := fc.Field.String()

	value := fc.Value
	if fc.Operator == OpRelative {
		token, ok := value.(string)
		if !ok {
			return "", operatorError(path, field, string(fc.Operator), errRelativeToken)
		}
		r, err := ResolveRelative(token, c.clock())
		if err != nil {
			return "", operatorError(path, field, string(fc.Operator), err)
		}
		value = r
	}

	expr := renderPath(fc.Field, spec.jsonValued)
	if fc.Field.IsJSON() && spec.castable {
		if cast := castFor(value); cast != "" {
			expr = "(" + expr + ")::" + cast
		}
	}

	sql, err := spec.compile(operand{field: expr, value: value, mods: fc.Modifiers}, alloc)
	if err != nil {
		return "", operatorError(path, field, string(fc.Operator), err)
	}
	if fc.Modifiers.Negate {
		sql = "NOT (" + sql + ")"
	}
	return sql, nil
}

func (c *Compiler) clock() time.Time {
	t := c.now()
	if c.loc != nil {
		t = t.In(c.loc)
	}
	return t
}
