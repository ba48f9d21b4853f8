/*
Package foreman provides the entity store and the concurrency core of a data-oriented
simulation: an archetype-based Entity-Component-System plus, in its subpackages, a
work-stealing job scheduler (jobs) and a dependency-graph tick runner (graph).

Entities that own the same set of component types, and carry the same shared component
values, live together in one archetype. Each archetype stores its components column-wise
so that systems iterating a query touch contiguous memory.

Core Concepts:

  - Entity: A monotonically issued identifier. Zero is never a valid entity.
  - Component: A data container stored per entity in an archetype column.
  - Shared component: A value common to every entity of an archetype.
  - Archetype: A collection of entities sharing the same component types and shared values.
  - Query: A required/disallowed filter with a cached, incrementally maintained archetype list.

Basic Usage:

	schema := table.Factory.NewSchema()
	world := foreman.Factory.NewWorld(schema)

	position := foreman.FactoryNewComponent[Position]()
	velocity := foreman.FactoryNewComponent[Velocity]()

	entities, _ := world.CreateEntities(100, position, velocity)

	query, _ := world.RegisterQuery(foreman.Factory.NewQuery().And(position, velocity))
	cursor := foreman.Factory.NewCursor(query)

	for cursor.Next() {
		pos := position.GetFromCursor(cursor)
		vel := velocity.GetFromCursor(cursor)
		pos.X += vel.X
		pos.Y += vel.Y
	}

Concurrency:

Every archetype carries a reader/writer lock. Readers (cursors, parallel job bodies)
hold it shared through LockShared/UnlockShared; structural mutations (creating,
adding, removing entities, migrating between archetypes) take it exclusively. Column
handles returned by AccessibleComponent.Column are only valid until the next structural
mutation of their archetype and report StaleColumnError afterwards.

Component types are numbered process-wide, so declare each one once. A world accepts
types whose schema row fits the signature mask (64 by default, more with the m256, m512
or m1024 build tags) and reports ComponentLimitError for the rest.

Entity ids are never recycled. A world that exhausts MaxEntity ids refuses further
reservations with EntityLimitError rather than wrapping around.
*/
package foreman
