package foreman

import (
	"errors"
	"slices"
	"testing"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	Value int
}

type Team int

type Layer string

// Element types are numbered process-wide, so tests share one set
var (
	pos    = FactoryNewComponent[Position]()
	vel    = FactoryNewComponent[Velocity]()
	health = FactoryNewComponent[Health]()
	team   = FactoryNewSharedComponent[Team]()
	layer  = FactoryNewSharedComponent[Layer]()
)

func newTestWorld() *World {
	return Factory.NewWorld(table.Factory.NewSchema())
}

func registerQuery(t testing.TB, world *World, query *Query) *Query {
	t.Helper()
	registered, err := world.RegisterQuery(query)
	if err != nil {
		t.Fatalf("Failed to register query: %v", err)
	}
	return registered
}

// TestArchetypeCreation tests the creation and reuse of archetypes
func TestArchetypeCreation(t *testing.T) {
	tests := []struct {
		name                string
		firstComponents     []Component
		secondComponents    []Component
		expectSameArchetype bool
	}{
		{
			name:                "Identical components",
			firstComponents:     []Component{pos, vel},
			secondComponents:    []Component{pos, vel},
			expectSameArchetype: true,
		},
		{
			name:                "Different order",
			firstComponents:     []Component{pos, vel},
			secondComponents:    []Component{vel, pos},
			expectSameArchetype: true,
		},
		{
			name:                "Different components",
			firstComponents:     []Component{pos},
			secondComponents:    []Component{vel},
			expectSameArchetype: false,
		},
		{
			name:                "Subset components",
			firstComponents:     []Component{pos, vel},
			secondComponents:    []Component{pos},
			expectSameArchetype: false,
		},
		{
			name:                "Superset components",
			firstComponents:     []Component{pos},
			secondComponents:    []Component{pos, vel, health},
			expectSameArchetype: false,
		},
		{
			name:                "Duplicated component",
			firstComponents:     []Component{pos, pos},
			secondComponents:    []Component{pos},
			expectSameArchetype: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := newTestWorld()

			archetype1, err := world.Archetype(tt.firstComponents)
			if err != nil {
				t.Fatalf("Failed to create first archetype: %v", err)
			}
			archetype2, err := world.Archetype(tt.secondComponents)
			if err != nil {
				t.Fatalf("Failed to create second archetype: %v", err)
			}

			sameArchetype := archetype1.ID() == archetype2.ID()
			if sameArchetype != tt.expectSameArchetype {
				t.Errorf("Archetypes same: %v, expected: %v", sameArchetype, tt.expectSameArchetype)
			}
		})
	}
}

func TestArchetypeSharedValues(t *testing.T) {
	world := newTestWorld()

	red, err := world.Archetype([]Component{pos}, team.Value(1))
	if err != nil {
		t.Fatalf("Failed to create archetype: %v", err)
	}
	blue, _ := world.Archetype([]Component{pos}, team.Value(2))
	redAgain, _ := world.Archetype([]Component{pos}, team.Value(1))
	plain, _ := world.Archetype([]Component{pos})
	layered, _ := world.Archetype([]Component{pos}, layer.Value("ui"), team.Value(1))
	layeredReordered, _ := world.Archetype([]Component{pos}, team.Value(1), layer.Value("ui"))

	if red == blue {
		t.Error("Different shared values should select different archetypes")
	}
	if red != redAgain {
		t.Error("Equal shared values should select the same archetype")
	}
	if red == plain {
		t.Error("An archetype with a shared value should differ from one without")
	}
	if layered != layeredReordered {
		t.Error("Shared value order should not matter")
	}

	if v, ok := team.Get(blue); !ok || v != 2 {
		t.Errorf("team.Get(blue) = %v, %v; want 2, true", v, ok)
	}
	if _, ok := layer.Get(red); ok {
		t.Error("Layer should not be carried by the red archetype")
	}
	if got := len(world.Archetypes()); got != 4 {
		t.Errorf("Expected 4 archetypes, got %d", got)
	}
}

func TestCreateEntities(t *testing.T) {
	world := newTestWorld()

	first, err := world.CreateEntities(3, pos)
	if err != nil {
		t.Fatalf("Failed to create entities: %v", err)
	}
	second, err := world.CreateEntities(2, pos, vel)
	if err != nil {
		t.Fatalf("Failed to create entities: %v", err)
	}

	if diff := cmp.Diff([]Entity{1, 2, 3}, first); diff != "" {
		t.Errorf("First batch mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Entity{4, 5}, second); diff != "" {
		t.Errorf("Second batch mismatch (-want +got):\n%s", diff)
	}
	if world.EntityCount() != 5 {
		t.Errorf("Expected 5 live entities, got %d", world.EntityCount())
	}
	if world.LastIssued() != 5 {
		t.Errorf("Expected last issued id 5, got %d", world.LastIssued())
	}

	arch, _ := world.ArchetypeOf(second[0])
	if arch.Len() != 2 {
		t.Errorf("Expected 2 entities in archetype, got %d", arch.Len())
	}
	for _, comp := range []Component{pos, vel} {
		if !arch.Contains(comp) {
			t.Errorf("Archetype missing component %T", comp)
		}
	}

	zero, err := pos.Get(world, first[0])
	if err != nil {
		t.Fatalf("Failed to get component: %v", err)
	}
	if *zero != (Position{}) {
		t.Errorf("New component should be zero, got %+v", *zero)
	}

	none, err := world.CreateEntities(0, pos)
	if err != nil || len(none) != 0 {
		t.Errorf("CreateEntities(0) = %v, %v; want empty, nil", none, err)
	}
}

// TestEntityDestruction tests destroying entities
func TestEntityDestruction(t *testing.T) {
	world := newTestWorld()

	entities, err := world.CreateEntities(5, pos)
	if err != nil {
		t.Fatalf("Failed to create entities: %v", err)
	}
	for i, en := range entities {
		p, _ := pos.Get(world, en)
		p.X = float64(i)
	}
	arch, _ := world.ArchetypeOf(entities[0])

	if err := world.DestroyEntities(entities[1]); err != nil {
		t.Fatalf("Failed to destroy entity: %v", err)
	}

	// the last row fills the hole
	want := []Entity{entities[0], entities[4], entities[2], entities[3]}
	if diff := cmp.Diff(want, arch.Entities()); diff != "" {
		t.Errorf("Entity order mismatch (-want +got):\n%s", diff)
	}
	if world.Alive(entities[1]) {
		t.Error("Destroyed entity should not be alive")
	}
	moved, err := pos.Get(world, entities[4])
	if err != nil {
		t.Fatalf("Failed to get moved entity: %v", err)
	}
	if moved.X != 4 {
		t.Errorf("Moved entity lost its value: %+v", *moved)
	}

	var notFound EntityNotFoundError
	if err := world.DestroyEntities(entities[1]); !errors.As(err, &notFound) {
		t.Errorf("Expected EntityNotFoundError, got %v", err)
	}
	if err := world.DestroyEntities(entities[0], 999); !errors.As(err, &notFound) {
		t.Errorf("Expected EntityNotFoundError for unknown id, got %v", err)
	}
	if !world.Alive(entities[0]) {
		t.Error("A failed destroy should not remove valid entities")
	}
}

func TestArchetypeAddRemoveEntities(t *testing.T) {
	world := newTestWorld()
	arch, _ := world.Archetype([]Component{pos})
	other, _ := world.Archetype([]Component{pos, health})

	ids, err := arch.CreateEntities(3)
	if err != nil {
		t.Fatalf("Failed to create entities: %v", err)
	}

	var notFound EntityNotFoundError
	if err := other.RemoveEntities(ids[0]); !errors.As(err, &notFound) {
		t.Errorf("Removing from the wrong archetype should fail, got %v", err)
	}
	if err := arch.RemoveEntities(ids[0], ids[2]); err != nil {
		t.Fatalf("Failed to remove entities: %v", err)
	}
	if diff := cmp.Diff([]Entity{ids[1]}, arch.Entities()); diff != "" {
		t.Errorf("Remaining entities mismatch (-want +got):\n%s", diff)
	}

	// detached ids can be stored again
	if err := other.AddEntities(ids[0]); err != nil {
		t.Fatalf("Failed to add detached entity: %v", err)
	}
	if got, _ := world.ArchetypeOf(ids[0]); got != other {
		t.Error("Re-added entity should live in the target archetype")
	}

	var exists EntityExistsError
	if err := other.AddEntities(ids[1]); !errors.As(err, &exists) {
		t.Errorf("Adding a live entity should fail, got %v", err)
	}
	if err := other.AddEntities(ids[2], ids[2]); !errors.As(err, &exists) {
		t.Errorf("Adding the same id twice should fail, got %v", err)
	}
	if err := other.AddEntities(world.LastIssued() + 1); !errors.As(err, &notFound) {
		t.Errorf("Adding an unissued id should fail, got %v", err)
	}
}

func TestEntityLimit(t *testing.T) {
	world := newTestWorld()
	world.nextID.Store(MaxEntity - 2)

	ids, err := world.CreateEntities(2, pos)
	if err != nil {
		t.Fatalf("Failed to create the last ids: %v", err)
	}
	if ids[1] != MaxEntity {
		t.Errorf("Expected last id %d, got %d", uint64(MaxEntity), ids[1])
	}

	var limit EntityLimitError
	if _, err := world.CreateEntities(1, pos); !errors.As(err, &limit) {
		t.Fatalf("Expected EntityLimitError, got %v", err)
	}
	if limit.Requested != 1 || limit.Issued != MaxEntity {
		t.Errorf("Unexpected limit error contents: %+v", limit)
	}
}

func TestComponentLimit(t *testing.T) {
	world := newTestWorld()
	existing, err := world.CreateEntities(1, pos)
	if err != nil {
		t.Fatalf("Failed to create entity: %v", err)
	}

	var limit ComponentLimitError
	for range mask.MaxBits + 1 {
		_, err = world.Archetype([]Component{FactoryNewComponent[Position]()})
		if err != nil {
			break
		}
	}
	if !errors.As(err, &limit) {
		t.Fatalf("Expected ComponentLimitError once the mask is full, got %v", err)
	}
	if limit.Max != mask.MaxBits || int(limit.Row) < mask.MaxBits {
		t.Errorf("Unexpected limit error contents: %+v", limit)
	}

	over := FactoryNewComponent[Health]()
	overShared := FactoryNewSharedComponent[Team]()
	if _, err := world.CreateEntities(1, pos, over); !errors.As(err, &limit) {
		t.Errorf("CreateEntities should report the limit, got %v", err)
	}
	if _, err := world.Archetype([]Component{pos}, overShared.Value(1)); !errors.As(err, &limit) {
		t.Errorf("Shared values should report the limit, got %v", err)
	}
	if _, err := world.RegisterQuery(Factory.NewQuery().And(pos).Not(over)); !errors.As(err, &limit) {
		t.Errorf("RegisterQuery should report the limit, got %v", err)
	}
	if err := world.AddComponent(existing[0], over); !errors.As(err, &limit) {
		t.Errorf("AddComponent should report the limit, got %v", err)
	}

	world.Lock()
	if err := world.EnqueueAddComponent(existing[0], over); !errors.As(err, &limit) {
		t.Errorf("EnqueueAddComponent should report the limit, got %v", err)
	}
	if err := world.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	// types registered before the limit keep working
	arch, _ := world.ArchetypeOf(existing[0])
	if arch.Contains(over) {
		t.Error("A refused type should not be owned by any archetype")
	}
	var notFound ComponentNotFoundError
	if _, err := over.Get(world, existing[0]); !errors.As(err, &notFound) {
		t.Errorf("Expected ComponentNotFoundError, got %v", err)
	}
	if _, ok := overShared.Get(arch); ok {
		t.Error("A refused shared type should not be carried")
	}
	if err := world.AddComponent(existing[0], vel); err != nil {
		t.Errorf("Known components should still migrate: %v", err)
	}
}

func TestConcurrentCreation(t *testing.T) {
	world := newTestWorld()

	const goroutines, perGoroutine = 8, 500
	results := make([][]Entity, goroutines)
	var g errgroup.Group
	for i := range goroutines {
		g.Go(func() error {
			comps := []Component{pos}
			if i%2 == 1 {
				comps = append(comps, vel)
			}
			for range perGoroutine / 10 {
				ids, err := world.CreateEntities(10, comps...)
				if err != nil {
					return err
				}
				results[i] = append(results[i], ids...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Concurrent creation failed: %v", err)
	}

	var all []Entity
	for _, ids := range results {
		all = append(all, ids...)
	}
	slices.Sort(all)
	if got := len(slices.Compact(all)); got != goroutines*perGoroutine {
		t.Errorf("Expected %d unique ids, got %d", goroutines*perGoroutine, got)
	}
	if world.EntityCount() != goroutines*perGoroutine {
		t.Errorf("Expected %d live entities, got %d", goroutines*perGoroutine, world.EntityCount())
	}
	if got := len(world.Archetypes()); got != 2 {
		t.Errorf("Concurrent lookups should share archetypes, got %d", got)
	}
}
