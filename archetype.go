package foreman

import (
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/TheBitDrifter/mask"
)

type ArchetypeID uint32

// Archetype holds every entity that owns exactly its component types and carries
// exactly its shared values. Columns are parallel to the entity list.
type Archetype struct {
	id         ArchetypeID
	world      *World
	mu         sync.RWMutex
	mask       mask.Mask
	sharedMask mask.Mask
	components []Component
	shared     []sharedEntry
	columns    map[uint32]column
	entities   []Entity
	// bumped on every structural mutation; column handles compare against it
	generation atomic.Uint64
}

// newArchetype takes the schema rows already resolved for components
func newArchetype(w *World, id ArchetypeID, components []Component, rows []uint32, shared []sharedEntry) *Archetype {
	a := &Archetype{
		id:      id,
		world:   w,
		shared:  shared,
		columns: make(map[uint32]column, len(components)),
	}
	for i, comp := range components {
		row := rows[i]
		if _, dup := a.columns[row]; dup {
			continue
		}
		a.mask.Mark(row)
		a.columns[row] = comp.newColumn()
		a.components = append(a.components, comp)
	}
	for _, entry := range shared {
		a.sharedMask.Mark(entry.row)
	}
	return a
}

func (a *Archetype) ID() uint32 {
	return uint32(a.id)
}

// World returns the world the archetype belongs to
func (a *Archetype) World() *World {
	return a.world
}

// Mask returns the owned component signature
func (a *Archetype) Mask() mask.Mask {
	return a.mask
}

// SharedMask returns the shared component signature
func (a *Archetype) SharedMask() mask.Mask {
	return a.sharedMask
}

// Components iterates the owned component types
func (a *Archetype) Components() iter.Seq[Component] {
	return slices.Values(a.components)
}

// SharedValues returns a copy of the archetype's shared values
func (a *Archetype) SharedValues() []SharedValue {
	values := make([]SharedValue, len(a.shared))
	for i, entry := range a.shared {
		values[i] = SharedValue{typ: entry.typ, value: entry.value}
	}
	return values
}

// Contains reports whether the archetype owns a column for c
func (a *Archetype) Contains(c Component) bool {
	row, known := a.world.knownRow(c)
	if !known {
		return false
	}
	_, ok := a.columns[row]
	return ok
}

// Len returns the entity count. Callers racing structural mutation should hold the shared lock.
func (a *Archetype) Len() int {
	return len(a.entities)
}

// Entities returns the borrowed entity id list. Order is not stable across removals.
func (a *Archetype) Entities() []Entity {
	return a.entities
}

// Generation returns the structural mutation counter
func (a *Archetype) Generation() uint64 {
	return a.generation.Load()
}

// LockShared acquires the archetype for reading
func (a *Archetype) LockShared() {
	a.mu.RLock()
}

// UnlockShared releases a read acquisition
func (a *Archetype) UnlockShared() {
	a.mu.RUnlock()
}

// CreateEntities reserves n contiguous ids from the world and appends them with zero
// component values
func (a *Archetype) CreateEntities(n int) ([]Entity, error) {
	if a.world.Locked() {
		return nil, LockedWorldError{}
	}
	if n <= 0 {
		return nil, nil
	}
	first, err := a.world.reserve(n)
	if err != nil {
		return nil, err
	}
	ids := make([]Entity, n)
	for i := range ids {
		ids[i] = first + Entity(i)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendLocked(ids)
	return ids, nil
}

// AddEntities appends already issued, currently detached ids with zero component values
func (a *Archetype) AddEntities(ids ...Entity) error {
	if a.world.Locked() {
		return LockedWorldError{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.world
	issued := w.nextID.Load()
	seen := make(map[Entity]struct{}, len(ids))
	w.recordsMu.Lock()
	defer w.recordsMu.Unlock()
	for _, id := range ids {
		if id == 0 || Entity(issued) < id {
			return EntityNotFoundError{Entity: id}
		}
		if _, live := w.records[id]; live {
			return EntityExistsError{Entity: id}
		}
		if _, dup := seen[id]; dup {
			return EntityExistsError{Entity: id}
		}
		seen[id] = struct{}{}
	}
	a.appendRowsLocked(ids)
	return nil
}

// RemoveEntities removes ids with swap-with-last; they leave the world's live set.
// Nothing is removed if any id does not belong to the archetype.
func (a *Archetype) RemoveEntities(ids ...Entity) error {
	if a.world.Locked() {
		return LockedWorldError{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.world
	w.recordsMu.Lock()
	defer w.recordsMu.Unlock()
	for _, id := range ids {
		rec, ok := w.records[id]
		if !ok || rec.archetype != a {
			return EntityNotFoundError{Entity: id}
		}
	}
	for _, id := range ids {
		rec, ok := w.records[id]
		if !ok {
			// duplicated in ids, already gone
			continue
		}
		a.removeRowLocked(rec.row)
		delete(w.records, id)
	}
	a.generation.Add(1)
	return nil
}

// appendLocked requires a.mu held exclusively.
func (a *Archetype) appendLocked(ids []Entity) {
	a.world.recordsMu.Lock()
	defer a.world.recordsMu.Unlock()
	a.appendRowsLocked(ids)
}

// appendRowsLocked requires a.mu held exclusively and the world's records locked.
func (a *Archetype) appendRowsLocked(ids []Entity) {
	start := len(a.entities)
	a.entities = append(a.entities, ids...)
	for _, col := range a.columns {
		col.extend(len(ids))
	}
	for i, id := range ids {
		a.world.records[id] = record{archetype: a, row: start + i}
	}
	a.generation.Add(1)
}

// removeRowLocked requires a.mu held exclusively and the world's records locked.
func (a *Archetype) removeRowLocked(row int) {
	last := len(a.entities) - 1
	moved := a.entities[last]
	a.entities[row] = moved
	a.entities = a.entities[:last]
	for _, col := range a.columns {
		col.swapRemove(row)
	}
	if row != last {
		a.world.records[moved] = record{archetype: a, row: row}
	}
}

// matches reports whether a has the exact signature and shared values.
func (a *Archetype) matches(owned, sharedMask mask.Mask, shared []sharedEntry) bool {
	if a.mask != owned || a.sharedMask != sharedMask || len(a.shared) != len(shared) {
		return false
	}
	for i := range shared {
		if a.shared[i].row != shared[i].row || a.shared[i].value != shared[i].value {
			return false
		}
	}
	return true
}
