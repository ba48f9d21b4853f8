package foreman

import (
	"github.com/TheBitDrifter/table"
)

// AccessibleComponent extends a base Component with typed column access
// It provides methods to retrieve components using different access patterns
type AccessibleComponent[T any] struct {
	table.ElementType
}

func (c AccessibleComponent[T]) newColumn() column {
	return &typedColumn[T]{}
}

// GetFromCursor retrieves a component value for the entity at the cursor position
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor) *T {
	col := c.typed(cursor.currentArchetype)
	return &col.values[cursor.entityIndex-1]
}

// GetFromCursorSafe safely retrieves a component value, checking if the component exists
// Returns a boolean indicating success and the component pointer if found
func (c AccessibleComponent[T]) GetFromCursorSafe(cursor *Cursor) (bool, *T) {
	if !c.CheckCursor(cursor) {
		return false, nil
	}
	return true, c.GetFromCursor(cursor)
}

// CheckCursor determines if the component exists in the archetype at the cursor position
func (c AccessibleComponent[T]) CheckCursor(cursor *Cursor) bool {
	if cursor.currentArchetype == nil {
		return false
	}
	return c.typed(cursor.currentArchetype) != nil
}

// Get retrieves the component value of a live entity. The pointer is borrowed from the
// entity's archetype column and must not be kept across a structural mutation.
func (c AccessibleComponent[T]) Get(w *World, e Entity) (*T, error) {
	arch, row, ok := w.lookup(e)
	if !ok {
		return nil, EntityNotFoundError{Entity: e}
	}
	col := c.typed(arch)
	if col == nil {
		return nil, ComponentNotFoundError{Component: c}
	}
	return &col.values[row], nil
}

// Column returns a checked handle over the archetype's column for this component
// (the archetype's component list). The caller should hold the archetype's shared lock
// while using it.
func (c AccessibleComponent[T]) Column(a *Archetype) (Column[T], error) {
	col := c.typed(a)
	if col == nil {
		return Column[T]{}, ComponentNotFoundError{Component: c}
	}
	return Column[T]{
		archetype:  a,
		generation: a.generation.Load(),
		values:     col.values,
	}, nil
}

func (c AccessibleComponent[T]) typed(a *Archetype) *typedColumn[T] {
	row, known := a.world.knownRow(c)
	if !known {
		return nil
	}
	col, ok := a.columns[row]
	if !ok {
		return nil
	}
	return col.(*typedColumn[T])
}

// Column is a borrowed view of one archetype column. It is invalidated by the next
// structural mutation of the archetype.
type Column[T any] struct {
	archetype  *Archetype
	generation uint64
	values     []T
}

// Valid reports whether the archetype has not been structurally mutated since the
// handle was acquired
func (c Column[T]) Valid() bool {
	return c.archetype != nil && c.archetype.generation.Load() == c.generation
}

// Len returns the number of rows visible through the handle
func (c Column[T]) Len() int {
	return len(c.values)
}

// Get returns the value at row, or StaleColumnError when the handle outlived its archetype layout
func (c Column[T]) Get(row int) (*T, error) {
	if c.archetype == nil {
		return nil, StaleColumnError{}
	}
	if !c.Valid() {
		return nil, StaleColumnError{Archetype: c.archetype.ID()}
	}
	if row < 0 || row >= len(c.values) {
		return nil, RowOutOfRangeError{Row: row, Len: len(c.values)}
	}
	return &c.values[row], nil
}

// Values exposes the raw rows without the staleness check. Hot loops inside a
// shared-locked section use this.
func (c Column[T]) Values() []T {
	return c.values
}

// SharedComponent is a component type whose value belongs to an archetype
type SharedComponent[T comparable] struct {
	table.ElementType
}

func (s SharedComponent[T]) sharedType() {}

// Value builds the shared value used to select or create an archetype
func (s SharedComponent[T]) Value(v T) SharedValue {
	return SharedValue{typ: s, value: v}
}

// Get returns the archetype's shared value for this type (the shared component lookup)
func (s SharedComponent[T]) Get(a *Archetype) (T, bool) {
	var zero T
	row, known := a.world.knownRow(s)
	if !known {
		return zero, false
	}
	for _, entry := range a.shared {
		if entry.row == row {
			return entry.value.(T), true
		}
	}
	return zero, false
}
