package foreman

import "github.com/TheBitDrifter/table"

type factory struct{}

var Factory factory

func (f factory) NewWorld(schema table.Schema) *World {
	return newWorld(schema)
}

func (f factory) NewQuery() *Query {
	return newQuery()
}

func (f factory) NewCursor(query *Query) *Cursor {
	return newCursor(query)
}

func FactoryNewComponent[T any]() AccessibleComponent[T] {
	return AccessibleComponent[T]{
		ElementType: table.FactoryNewElementType[T](),
	}
}

func FactoryNewSharedComponent[T comparable]() SharedComponent[T] {
	return SharedComponent[T]{
		ElementType: table.FactoryNewElementType[T](),
	}
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
