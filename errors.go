package foreman

import "fmt"

type LockedWorldError struct{}

func (e LockedWorldError) Error() string {
	return "world is currently locked"
}

type ComponentExistsError struct {
	Component Component
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already exists on entity: %T", e.Component)
}

type ComponentNotFoundError struct {
	Component Component
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component does not exist on entity: %T", e.Component)
}

type EntityNotFoundError struct {
	Entity Entity
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %d is not alive in this world", e.Entity)
}

type EntityExistsError struct {
	Entity Entity
}

func (e EntityExistsError) Error() string {
	return fmt.Sprintf("entity %d already belongs to an archetype", e.Entity)
}

// EntityLimitError is returned when a reservation would exceed MaxEntity. Ids are not
// recycled, so a world that hits it cannot create more entities.
type EntityLimitError struct {
	Requested int
	Issued    Entity
}

func (e EntityLimitError) Error() string {
	return fmt.Sprintf("cannot reserve %d entity ids: %d already issued of %d", e.Requested, e.Issued, uint64(MaxEntity))
}

// ComponentLimitError is returned when a component type's schema row does not fit the
// signature mask. Build with the m256, m512 or m1024 tag to raise the limit.
type ComponentLimitError struct {
	Row uint32
	Max int
}

func (e ComponentLimitError) Error() string {
	return fmt.Sprintf("component row %d exceeds the %d-bit signature mask", e.Row, e.Max)
}

type StaleColumnError struct {
	Archetype uint32
}

func (e StaleColumnError) Error() string {
	return fmt.Sprintf("column handle for archetype %d outlived a structural mutation", e.Archetype)
}

type RowOutOfRangeError struct {
	Row, Len int
}

func (e RowOutOfRangeError) Error() string {
	return fmt.Sprintf("row %d out of range [0, %d)", e.Row, e.Len)
}

type CacheCapacityError struct {
	Capacity int
}

func (e CacheCapacityError) Error() string {
	return fmt.Sprintf("cache at maximum capacity (%d)", e.Capacity)
}

type CacheKeyExistsError struct {
	Key string
}

func (e CacheKeyExistsError) Error() string {
	return fmt.Sprintf("cache key already registered: %q", e.Key)
}
