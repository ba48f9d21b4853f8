package foreman

import (
	"slices"
	"sync"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

// Query filters archetypes by owned and shared component types. Once registered with a
// World, its list of matching archetypes is kept current as archetypes are created.
type Query struct {
	and, not, or         []Component
	andShared, notShared []SharedType

	required, disallowed, anyOf         mask.Mask
	requiredShared, disallowedShared    mask.Mask
	hasAny, hasDisallowed, hasNotShared bool
	world                               *World

	mu                 sync.RWMutex
	matchingArchetypes []*Archetype
}

func newQuery() *Query {
	return &Query{}
}

// And requires every given component to be owned
func (q *Query) And(components ...Component) *Query {
	q.and = append(q.and, components...)
	return q
}

// Not rejects archetypes owning any of the given components
func (q *Query) Not(components ...Component) *Query {
	q.not = append(q.not, components...)
	return q
}

// Or requires at least one of the given components to be owned
func (q *Query) Or(components ...Component) *Query {
	q.or = append(q.or, components...)
	return q
}

// AndShared requires every given shared type to be carried
func (q *Query) AndShared(types ...SharedType) *Query {
	q.andShared = append(q.andShared, types...)
	return q
}

// NotShared rejects archetypes carrying any of the given shared types
func (q *Query) NotShared(types ...SharedType) *Query {
	q.notShared = append(q.notShared, types...)
	return q
}

// bind resolves component rows against w. Called once, before the query is offered archetypes.
func (q *Query) bind(w *World) error {
	var required, disallowed, anyOf, requiredShared, disallowedShared mask.Mask
	marks := []struct {
		types []table.ElementType
		into  *mask.Mask
	}{
		{elementTypes(q.and), &required},
		{elementTypes(q.not), &disallowed},
		{elementTypes(q.or), &anyOf},
		{elementTypes(q.andShared), &requiredShared},
		{elementTypes(q.notShared), &disallowedShared},
	}
	for _, m := range marks {
		for _, typ := range m.types {
			row, err := w.rowFor(typ)
			if err != nil {
				return err
			}
			m.into.Mark(row)
		}
	}
	q.world = w
	q.required, q.disallowed, q.anyOf = required, disallowed, anyOf
	q.requiredShared, q.disallowedShared = requiredShared, disallowedShared
	q.hasAny = len(q.or) > 0
	q.hasDisallowed = len(q.not) > 0
	q.hasNotShared = len(q.notShared) > 0
	return nil
}

func elementTypes[E table.ElementType](types []E) []table.ElementType {
	out := make([]table.ElementType, len(types))
	for i, typ := range types {
		out[i] = typ
	}
	return out
}

// Matches evaluates the filters against one archetype. Owned and shared filters apply
// independently.
func (q *Query) Matches(a *Archetype) bool {
	if !a.mask.ContainsAll(q.required) {
		return false
	}
	if q.hasDisallowed && !a.mask.ContainsNone(q.disallowed) {
		return false
	}
	if q.hasAny && !a.mask.ContainsAny(q.anyOf) {
		return false
	}
	if !a.sharedMask.ContainsAll(q.requiredShared) {
		return false
	}
	if q.hasNotShared && !a.sharedMask.ContainsNone(q.disallowedShared) {
		return false
	}
	return true
}

func (q *Query) offer(a *Archetype) {
	if !q.Matches(a) {
		return
	}
	q.mu.Lock()
	q.matchingArchetypes = append(q.matchingArchetypes, a)
	q.mu.Unlock()
}

// Archetypes returns a snapshot of the matching archetypes
func (q *Query) Archetypes() []*Archetype {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.matchingArchetypes)
}

// Count sums the entities of every matching archetype
func (q *Query) Count() int {
	total := 0
	for _, arch := range q.Archetypes() {
		arch.LockShared()
		total += arch.Len()
		arch.UnlockShared()
	}
	return total
}

// World returns the world the query is registered with, nil before registration
func (q *Query) World() *World {
	return q.world
}
