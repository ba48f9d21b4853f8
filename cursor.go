package foreman

import (
	"iter"
)

var _ iCursor = &Cursor{}

// Cursor walks the entities of a registered query archetype by archetype. While
// positioned on an archetype it holds that archetype's shared lock, so structural
// changes to it from inside the loop must go through the Enqueue calls.
type Cursor struct {
	query *Query

	currentArchetype *Archetype
	storageIndex     int
	entityIndex      int
	remaining        int
	holding          bool

	initialized     bool
	matchedStorages []*Archetype
}

func newCursor(query *Query) *Cursor {
	return &Cursor{
		query: query,
	}
}

func (c *Cursor) Next() bool {
	if c.holding && c.entityIndex < c.remaining {
		c.entityIndex++
		return true
	}
	return c.advance()
}

func (c *Cursor) advance() bool {
	if !c.initialized {
		c.initialize()
	} else if c.holding {
		c.release()
		c.storageIndex++
		c.entityIndex = 0
	}
	for c.storageIndex < len(c.matchedStorages) {
		c.acquire(c.matchedStorages[c.storageIndex])
		if c.entityIndex < c.remaining {
			c.entityIndex++
			return true
		}
		c.release()
		c.storageIndex++
		c.entityIndex = 0
	}
	c.Reset()
	return false
}

// Entities yields the row and archetype of every matched entity
func (c *Cursor) Entities() iter.Seq2[int, *Archetype] {
	return func(yield func(int, *Archetype) bool) {
		c.Reset()
		c.initialize()

		for c.storageIndex < len(c.matchedStorages) {
			c.acquire(c.matchedStorages[c.storageIndex])
			for c.entityIndex < c.remaining {
				c.entityIndex++
				if !yield(c.entityIndex-1, c.currentArchetype) {
					c.Reset()
					return
				}
			}
			c.release()
			c.entityIndex = 0
			c.storageIndex++
		}
		c.Reset()
	}
}

func (c *Cursor) initialize() {
	if c.initialized {
		return
	}
	c.matchedStorages = c.query.Archetypes()
	c.storageIndex = 0
	c.entityIndex = 0
	c.initialized = true
}

func (c *Cursor) acquire(a *Archetype) {
	a.LockShared()
	c.currentArchetype = a
	c.remaining = a.Len()
	c.holding = true
}

func (c *Cursor) release() {
	if c.holding {
		c.currentArchetype.UnlockShared()
		c.holding = false
	}
}

// Reset releases any held archetype and rewinds the cursor
func (c *Cursor) Reset() {
	c.release()
	c.currentArchetype = nil
	c.storageIndex = 0
	c.entityIndex = 0
	c.remaining = 0
	c.matchedStorages = nil
	c.initialized = false
}

// CurrentEntity returns the current row and archetype
func (c *Cursor) CurrentEntity() (int, *Archetype) {
	return c.entityIndex - 1, c.currentArchetype
}

// Row returns the current row within the current archetype
func (c *Cursor) Row() int {
	return c.entityIndex - 1
}

// Entity returns the id at the cursor position
func (c *Cursor) Entity() Entity {
	return c.currentArchetype.entities[c.entityIndex-1]
}

// Archetype returns the archetype the cursor is positioned on
func (c *Cursor) Archetype() *Archetype {
	return c.currentArchetype
}

func (c *Cursor) RemainingInArchetype() int {
	return c.remaining - c.entityIndex
}

func (c *Cursor) TotalMatched() int {
	return c.query.Count()
}
