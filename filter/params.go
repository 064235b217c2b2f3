package filter

import "strconv"

// ParameterAllocator hands out positional placeholders for one statement.
// Indexes start at 1 and are contiguous; the value at index k is
// Parameters()[k-1]. An allocator must not be shared between statements.
type ParameterAllocator struct {
	values []any
}

func NewParameterAllocator() *ParameterAllocator {
	return &ParameterAllocator{}
}

// Allocate appends v (nil included) and returns its 1-based index.
func (a *ParameterAllocator) Allocate(v any) int {
	a.values = append(a.values, v)
	return len(a.values)
}

// Placeholder allocates v and returns its "$n" placeholder.
func (a *ParameterAllocator) Placeholder(v any) string {
	return "$" + strconv.Itoa(a.Allocate(v))
}

// Len returns the number of allocated parameters.
func (a *ParameterAllocator) Len() int {
	return len(a.values)
}

// Parameters returns a copy of the allocated values in index order.
func (a *ParameterAllocator) Parameters() []any {
	out := make([]any, len(a.values))
	copy(out, a.values)
	return out
}
