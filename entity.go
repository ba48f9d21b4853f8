package foreman

import (
	"slices"

	iter_util "github.com/TheBitDrifter/util/iter"
	"github.com/rotisserie/eris"
)

// Entity is an opaque id, unique within its World for the World's lifetime. Zero is invalid.
type Entity uint32

// Valid reports whether e could name an entity
func (e Entity) Valid() bool {
	return e != 0
}

// migration describes the destination of an entity given its current archetype
type migration func(src *Archetype) ([]Component, []SharedValue, error)

// AddComponent moves e to the archetype that additionally owns c. The new column value
// is zero; every other value is carried over.
func (w *World) AddComponent(e Entity, c Component) error {
	return w.migrate(e, addPlan(c), nil)
}

// AddComponentWithValue adds c to e and stores value in the new column
func AddComponentWithValue[T any](w *World, e Entity, c AccessibleComponent[T], value T) error {
	return w.migrate(e, addPlan(c), func(dst *Archetype, row int) {
		c.typed(dst).values[row] = value
	})
}

// RemoveComponent moves e to the archetype without c
func (w *World) RemoveComponent(e Entity, c Component) error {
	return w.migrate(e, func(src *Archetype) ([]Component, []SharedValue, error) {
		if !src.Contains(c) {
			return nil, nil, ComponentNotFoundError{Component: c}
		}
		row, _ := w.knownRow(c)
		comps := slices.DeleteFunc(
			iter_util.Collect(src.Components()),
			func(comp Component) bool {
				other, _ := w.knownRow(comp)
				return other == row
			},
		)
		return comps, src.SharedValues(), nil
	}, nil)
}

// SetShared moves e to the archetype carrying value for its shared type, keeping the
// other shared values and every owned column
func (w *World) SetShared(e Entity, value SharedValue) error {
	return w.migrate(e, func(src *Archetype) ([]Component, []SharedValue, error) {
		shared := append(src.SharedValues(), value)
		return iter_util.Collect(src.Components()), shared, nil
	}, nil)
}

func addPlan(c Component) migration {
	return func(src *Archetype) ([]Component, []SharedValue, error) {
		if src.Contains(c) {
			return nil, nil, ComponentExistsError{Component: c}
		}
		comps := append(iter_util.Collect(src.Components()), c)
		return comps, src.SharedValues(), nil
	}
}

// migrate resolves the destination archetype, copies every surviving column value at
// the entity's row into it and swap-removes the row from the source. Both archetypes
// are locked exclusively, lowest id first.
func (w *World) migrate(e Entity, plan migration, init func(dst *Archetype, row int)) error {
	if w.Locked() {
		return LockedWorldError{}
	}
	for {
		src, _, ok := w.lookup(e)
		if !ok {
			return EntityNotFoundError{Entity: e}
		}
		comps, shared, err := plan(src)
		if err != nil {
			return err
		}
		dst, err := w.Archetype(comps, shared...)
		if err != nil {
			return eris.Wrap(err, "failed to get/create archetype")
		}
		if dst == src {
			return nil
		}

		first, second := src, dst
		if second.id < first.id {
			first, second = second, first
		}
		first.mu.Lock()
		second.mu.Lock()
		w.recordsMu.Lock()

		rec, ok := w.records[e]
		if !ok || rec.archetype != src {
			// moved or destroyed concurrently; resolve again
			w.recordsMu.Unlock()
			second.mu.Unlock()
			first.mu.Unlock()
			continue
		}

		dstRow := len(dst.entities)
		dst.entities = append(dst.entities, e)
		for key, dstCol := range dst.columns {
			if srcCol, found := src.columns[key]; found {
				dstCol.appendFrom(srcCol, rec.row)
			} else {
				dstCol.extend(1)
			}
		}
		src.removeRowLocked(rec.row)
		w.records[e] = record{archetype: dst, row: dstRow}
		if init != nil {
			init(dst, dstRow)
		}
		src.generation.Add(1)
		dst.generation.Add(1)

		w.recordsMu.Unlock()
		second.mu.Unlock()
		first.mu.Unlock()
		return nil
	}
}

// EnqueueCreateEntities creates entities now, or once the world is unlocked
func (w *World) EnqueueCreateEntities(n int, components ...Component) error {
	if w.enqueue(operation{typ: opCreate, amount: n, comps: components}) {
		return nil
	}
	_, err := w.CreateEntities(n, components...)
	if err != nil {
		return eris.Wrap(err, "failed to create entities directly")
	}
	return nil
}

// EnqueueDestroyEntities destroys entities now, or once the world is unlocked
func (w *World) EnqueueDestroyEntities(entities ...Entity) error {
	w.opMu.Lock()
	if w.Locked() {
		w.opQueue.EnqueueDestroy(entities)
		w.opMu.Unlock()
		return nil
	}
	w.opMu.Unlock()
	return w.DestroyEntities(entities...)
}

// EnqueueAddComponent adds c to e now, or once the world is unlocked
func (w *World) EnqueueAddComponent(e Entity, c Component) error {
	queued, err := w.enqueueComponentOp(opAddComponent, e, c)
	if queued || err != nil {
		return err
	}
	return w.AddComponent(e, c)
}

// EnqueueRemoveComponent removes c from e now, or once the world is unlocked
func (w *World) EnqueueRemoveComponent(e Entity, c Component) error {
	queued, err := w.enqueueComponentOp(opRemoveComponent, e, c)
	if queued || err != nil {
		return err
	}
	return w.RemoveComponent(e, c)
}

func (w *World) enqueue(op operation) bool {
	w.opMu.Lock()
	defer w.opMu.Unlock()
	if !w.Locked() {
		return false
	}
	w.opQueue.enqueueOp(op)
	return true
}

func (w *World) enqueueComponentOp(typ operationType, e Entity, c Component) (bool, error) {
	row, err := w.rowFor(c)
	if err != nil {
		return false, err
	}
	w.opMu.Lock()
	defer w.opMu.Unlock()
	if !w.Locked() {
		return false, nil
	}
	w.opQueue.EnqueueComponentOp(typ, e, row, c)
	return true, nil
}
