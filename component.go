package foreman

import (
	"github.com/TheBitDrifter/table"
)

// Component represents a data attribute/state that can be attached to entities
// Components can be used to create queries for entities
type Component interface {
	table.ElementType
	newColumn() column
}

// SharedType identifies a component whose value is held once per archetype
// rather than once per entity
type SharedType interface {
	table.ElementType
	sharedType()
}

// SharedValue pairs a shared component type with the value an archetype carries for it
type SharedValue struct {
	typ   SharedType
	value any
}

// Type returns the shared component type of the value
func (v SharedValue) Type() SharedType {
	return v.typ
}

// Value returns the raw shared value
func (v SharedValue) Value() any {
	return v.value
}

type sharedEntry struct {
	row   uint32
	typ   SharedType
	value any
}

// column is the per-archetype storage of one owned component type.
// Rows are kept parallel to the archetype's entity list.
type column interface {
	len() int
	extend(n int)
	swapRemove(row int)
	appendFrom(src column, row int)
}

type typedColumn[T any] struct {
	values []T
}

func (c *typedColumn[T]) len() int {
	return len(c.values)
}

func (c *typedColumn[T]) extend(n int) {
	c.values = append(c.values, make([]T, n)...)
}

func (c *typedColumn[T]) swapRemove(row int) {
	last := len(c.values) - 1
	c.values[row] = c.values[last]
	var zero T
	c.values[last] = zero
	c.values = c.values[:last]
}

func (c *typedColumn[T]) appendFrom(src column, row int) {
	c.values = append(c.values, src.(*typedColumn[T]).values[row])
}
