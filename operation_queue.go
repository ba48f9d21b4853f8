package foreman

import (
	"github.com/rotisserie/eris"
)

type operation struct {
	typ      operationType
	amount   int
	comps    []Component
	entities []Entity
}

type operationType int

const (
	opCreate operationType = iota
	opDestroy
	opAddComponent
	opRemoveComponent
	opCanceled operationType = -1
)

// opKey names one component slot of one entity
type opKey struct {
	entity Entity
	row    uint32
}

type opQueue struct {
	createOps      []operation
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[Entity]struct{}
	pendingMods    map[opKey]int
}

func newOpQueue() opQueue {
	return opQueue{
		pendingDestroy: make(map[Entity]struct{}),
		pendingMods:    make(map[opKey]int),
	}
}

func (q *opQueue) enqueueOp(op operation) {
	switch op.typ {
	case opCreate:
		q.createOps = append(q.createOps, op)
	case opDestroy:
		q.destroyOps = append(q.destroyOps, op)
	case opAddComponent, opRemoveComponent:
		q.componentOps = append(q.componentOps, op)
	}
}

func (q *opQueue) len() int {
	return len(q.createOps) + len(q.componentOps) + len(q.destroyOps)
}

// processOperationQueue requires w.opMu held and no outstanding locks.
func (w *World) processOperationQueue() error {
	q := &w.opQueue
	if q.len() == 0 {
		return nil
	}
	defer q.reset()

	// Process creates first
	for _, op := range q.createOps {
		if _, err := w.CreateEntities(op.amount, op.comps...); err != nil {
			return eris.Wrap(err, "failed to process queued entity creation")
		}
	}

	// Process component modifications
	for _, op := range q.componentOps {
		entity := op.entities[0]
		arch, alive := w.ArchetypeOf(entity)
		if !alive {
			continue
		}
		// the net effect may already hold by the time the queue drains
		switch op.typ {
		case opAddComponent:
			if arch.Contains(op.comps[0]) {
				continue
			}
			if err := w.AddComponent(entity, op.comps[0]); err != nil {
				return eris.Wrap(err, "failed to add queued component")
			}
		case opRemoveComponent:
			if !arch.Contains(op.comps[0]) {
				continue
			}
			if err := w.RemoveComponent(entity, op.comps[0]); err != nil {
				return eris.Wrap(err, "failed to remove queued component")
			}
		}
	}

	// Process destroys last
	for _, op := range q.destroyOps {
		entities := make([]Entity, 0, len(op.entities))
		for _, en := range op.entities {
			if w.Alive(en) {
				entities = append(entities, en)
			}
		}
		if len(entities) > 0 {
			if err := w.DestroyEntities(entities...); err != nil {
				return eris.Wrap(err, "failed to delete queued entities")
			}
		}
	}
	return nil
}

func (q *opQueue) reset() {
	q.createOps = q.createOps[:0]
	q.componentOps = q.componentOps[:0]
	q.destroyOps = q.destroyOps[:0]
	clear(q.pendingDestroy)
	clear(q.pendingMods)
}

func (q *opQueue) EnqueueDestroy(entities []Entity) {
	// Filter out already queued entities
	var newEntities []Entity
	for _, entity := range entities {
		if _, exists := q.pendingDestroy[entity]; exists {
			continue
		}
		newEntities = append(newEntities, entity)
		q.pendingDestroy[entity] = struct{}{}
	}

	// Remove any pending component operations for these entities
	if len(newEntities) > 0 {
		for key, idx := range q.pendingMods {
			if _, destroyed := q.pendingDestroy[key.entity]; destroyed {
				q.componentOps[idx].typ = opCanceled
				delete(q.pendingMods, key)
			}
		}
	}

	if len(newEntities) > 0 {
		q.enqueueOp(operation{
			typ:      opDestroy,
			entities: newEntities,
		})
	}
}

// EnqueueComponentOp queues an add or remove of the component at schema row. Operations
// on different components of one entity are kept in order.
func (q *opQueue) EnqueueComponentOp(typ operationType, entity Entity, row uint32, comp Component) {
	key := opKey{entity: entity, row: row}

	// If entity is pending destroy, ignore component operations
	if _, isDestroyed := q.pendingDestroy[entity]; isDestroyed {
		return
	}

	// A later operation on the same component replaces the earlier one
	if existingIdx, exists := q.pendingMods[key]; exists {
		existingOp := &q.componentOps[existingIdx]
		existingOp.comps = []Component{comp}
		existingOp.typ = typ
		return
	}

	q.pendingMods[key] = len(q.componentOps)
	q.enqueueOp(operation{
		typ:      typ,
		entities: []Entity{entity},
		comps:    []Component{comp},
	})
}
