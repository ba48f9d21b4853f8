package foreman

import (
	"slices"
	"sync"
)

var _ Cache[any] = &SimpleCache[any]{}

// SimpleCache is a bounded, append-only name registry
type SimpleCache[T any] struct {
	mu          sync.RWMutex
	items       []T
	itemIndices map[string]int
	maxCapacity int
}

func (c *SimpleCache[T]) GetIndex(key string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	index, ok := c.itemIndices[key]
	return index, ok
}

func (c *SimpleCache[T]) GetItem(index int) *T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &c.items[index]
}

func (c *SimpleCache[T]) GetItem32(index uint32) *T {
	return c.GetItem(int(index))
}

func (c *SimpleCache[T]) Register(key string, item T) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.itemIndices[key]; exists {
		return -1, CacheKeyExistsError{Key: key}
	}
	if len(c.itemIndices) >= c.maxCapacity {
		return -1, CacheCapacityError{Capacity: c.maxCapacity}
	}

	idx := len(c.items)
	c.itemIndices[key] = idx
	c.items = append(c.items, item)
	return idx, nil
}

func (c *SimpleCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *SimpleCache[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

func (c *SimpleCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = c.items[:0]
	c.itemIndices = make(map[string]int)
}
