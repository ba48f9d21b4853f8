package foreman

import (
	"iter"
)

type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	GetItem32(uint32) *T
	Register(string, T) (int, error)
	Len() int
	Items() []T
}

type iCursor interface {
	Entities() iter.Seq2[int, *Archetype]
	Next() bool
}
