package foreman

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
	"github.com/rotisserie/eris"
)

// MaxEntity is the largest id a world will ever issue
const MaxEntity = math.MaxUint32

// World owns entity id issuance and the archetypes that store entities
type World struct {
	// last issued id; ids are never recycled
	nextID atomic.Uint32

	mu         sync.RWMutex
	schema     table.Schema
	archetypes []*Archetype
	byMask     map[mask.Mask][]*Archetype
	queries    []*Query
	rows       sync.Map

	recordsMu sync.RWMutex
	records   map[Entity]record

	locks   atomic.Int32
	opMu    sync.Mutex
	opQueue opQueue
}

type record struct {
	archetype *Archetype
	row       int
}

func newWorld(schema table.Schema) *World {
	return &World{
		schema:  schema,
		byMask:  make(map[mask.Mask][]*Archetype),
		records: make(map[Entity]record),
		opQueue: newOpQueue(),
	}
}

// rowFor returns the schema row (mask bit) of a component type, registering it on first
// use. Rows past mask.MaxBits are refused.
func (w *World) rowFor(c table.ElementType) (uint32, error) {
	if row, ok := w.rows.Load(c); ok {
		return row.(uint32), nil
	}
	w.mu.Lock()
	w.schema.Register(c)
	row := w.schema.RowIndexFor(c)
	w.mu.Unlock()
	if row >= mask.MaxBits {
		return 0, ComponentLimitError{Row: row, Max: mask.MaxBits}
	}
	w.rows.Store(c, row)
	return row, nil
}

// knownRow is rowFor for lookups: a type without a usable row is in no archetype
func (w *World) knownRow(c table.ElementType) (uint32, bool) {
	row, err := w.rowFor(c)
	return row, err == nil
}

// RowIndexFor exposes the schema row of a component type
func (w *World) RowIndexFor(c table.ElementType) (uint32, error) {
	return w.rowFor(c)
}

// reserve atomically claims n contiguous ids and returns the first
func (w *World) reserve(n int) (Entity, error) {
	for {
		last := w.nextID.Load()
		if uint64(last)+uint64(n) > MaxEntity {
			return 0, EntityLimitError{Requested: n, Issued: Entity(last)}
		}
		if w.nextID.CompareAndSwap(last, last+uint32(n)) {
			return Entity(last + 1), nil
		}
	}
}

// Archetype returns the archetype owning exactly components and carrying exactly the
// shared values, creating and registering it when none exists yet. A new archetype is
// tested against every registered query.
func (w *World) Archetype(components []Component, shared ...SharedValue) (*Archetype, error) {
	var owned, sharedMask mask.Mask
	rows := make([]uint32, len(components))
	for i, comp := range components {
		if comp == nil {
			return nil, eris.New("nil component in archetype signature")
		}
		row, err := w.rowFor(comp)
		if err != nil {
			return nil, err
		}
		rows[i] = row
		owned.Mark(row)
	}
	entries, err := w.normalizeShared(shared)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		sharedMask.Mark(entry.row)
	}

	w.mu.RLock()
	found := w.find(owned, sharedMask, entries)
	w.mu.RUnlock()
	if found != nil {
		return found, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if found := w.find(owned, sharedMask, entries); found != nil {
		return found, nil
	}
	created := newArchetype(w, ArchetypeID(len(w.archetypes)+1), components, rows, entries)
	w.archetypes = append(w.archetypes, created)
	w.byMask[owned] = append(w.byMask[owned], created)
	for _, q := range w.queries {
		q.offer(created)
	}
	return created, nil
}

// find requires w.mu held.
func (w *World) find(owned, sharedMask mask.Mask, entries []sharedEntry) *Archetype {
	for _, candidate := range w.byMask[owned] {
		if candidate.matches(owned, sharedMask, entries) {
			return candidate
		}
	}
	return nil
}

// normalizeShared resolves rows and orders entries by row; a later value for the same
// type replaces an earlier one
func (w *World) normalizeShared(shared []SharedValue) ([]sharedEntry, error) {
	if len(shared) == 0 {
		return nil, nil
	}
	entries := make([]sharedEntry, 0, len(shared))
	for _, sv := range shared {
		if sv.typ == nil {
			return nil, eris.New("shared value without a shared component type")
		}
		row, err := w.rowFor(sv.typ)
		if err != nil {
			return nil, err
		}
		entry := sharedEntry{row: row, typ: sv.typ, value: sv.value}
		idx := slices.IndexFunc(entries, func(e sharedEntry) bool { return e.row == entry.row })
		if idx >= 0 {
			entries[idx] = entry
			continue
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b sharedEntry) int {
		switch {
		case a.row < b.row:
			return -1
		case a.row > b.row:
			return 1
		}
		return 0
	})
	return entries, nil
}

// Archetypes returns a snapshot of every archetype created so far
func (w *World) Archetypes() []*Archetype {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.archetypes)
}

// CreateEntities creates n entities owning the given components
func (w *World) CreateEntities(n int, components ...Component) ([]Entity, error) {
	return w.CreateSharedEntities(n, nil, components...)
}

// CreateSharedEntities creates n entities in the archetype selected by components and shared values
func (w *World) CreateSharedEntities(n int, shared []SharedValue, components ...Component) ([]Entity, error) {
	if w.Locked() {
		return nil, LockedWorldError{}
	}
	arch, err := w.Archetype(components, shared...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to resolve archetype")
	}
	return arch.CreateEntities(n)
}

// DestroyEntities removes entities from whichever archetypes hold them
func (w *World) DestroyEntities(entities ...Entity) error {
	if w.Locked() {
		return LockedWorldError{}
	}
	groups := make(map[*Archetype][]Entity)
	order := make([]*Archetype, 0)
	for _, en := range entities {
		arch, _, ok := w.lookup(en)
		if !ok {
			return EntityNotFoundError{Entity: en}
		}
		if _, seen := groups[arch]; !seen {
			order = append(order, arch)
		}
		groups[arch] = append(groups[arch], en)
	}
	for _, arch := range order {
		if err := arch.RemoveEntities(groups[arch]...); err != nil {
			return eris.Wrapf(err, "failed to remove entities from archetype %d", arch.ID())
		}
	}
	return nil
}

// Alive reports whether e is currently stored in an archetype
func (w *World) Alive(e Entity) bool {
	_, _, ok := w.lookup(e)
	return ok
}

// ArchetypeOf returns the archetype currently holding e
func (w *World) ArchetypeOf(e Entity) (*Archetype, bool) {
	arch, _, ok := w.lookup(e)
	return arch, ok
}

// EntityCount returns the number of live entities
func (w *World) EntityCount() int {
	w.recordsMu.RLock()
	defer w.recordsMu.RUnlock()
	return len(w.records)
}

// LastIssued returns the most recently issued id, zero if none
func (w *World) LastIssued() Entity {
	return Entity(w.nextID.Load())
}

func (w *World) lookup(e Entity) (*Archetype, int, bool) {
	w.recordsMu.RLock()
	defer w.recordsMu.RUnlock()
	rec, ok := w.records[e]
	return rec.archetype, rec.row, ok
}

// RegisterQuery attaches q to the world: existing archetypes are matched now and every
// archetype created later is offered to it
func (w *World) RegisterQuery(q *Query) (*Query, error) {
	if err := q.bind(w); err != nil {
		return nil, eris.Wrap(err, "failed to bind query")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.queries = append(w.queries, q)
	for _, arch := range w.archetypes {
		q.offer(arch)
	}
	return q, nil
}

// Locked reports whether structural changes are currently deferred
func (w *World) Locked() bool {
	return w.locks.Load() > 0
}

// Lock defers structural changes; Enqueue calls queue them until the last Unlock
func (w *World) Lock() {
	w.opMu.Lock()
	w.locks.Add(1)
	w.opMu.Unlock()
}

// Unlock releases one lock. Releasing the last one applies queued operations.
func (w *World) Unlock() error {
	w.opMu.Lock()
	defer w.opMu.Unlock()
	if w.locks.Load() == 0 {
		return nil
	}
	if w.locks.Add(-1) > 0 {
		return nil
	}
	if err := w.processOperationQueue(); err != nil {
		Config.Logger().Error("Failed to apply queued world operations.", "error", err)
		return err
	}
	return nil
}
