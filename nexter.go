package etl

import (
	"sync/atomic"
)

// Nexter is a threadsafe monotonic unique id generator.
type Nexter struct {
	id *uint64
}

// NewNexter creates a new id generator starting at 0.
func NewNexter() *Nexter {
	var id uint64
	return &Nexter{
		id: &id,
	}
}

// NewNexterAt creates an id generator whose next id is start. Persistent
// registries use it to resume allocation after reopening.
func NewNexterAt(start uint64) *Nexter {
	id := start
	return &Nexter{
		id: &id,
	}
}

// Next generates a new id and returns it.
func (n *Nexter) Next() (nextID uint64) {
	nextID = atomic.AddUint64(n.id, 1)
	return nextID - 1
}

// Last returns the most recently generated id.
func (n *Nexter) Last() (lastID uint64) {
	lastID = atomic.LoadUint64(n.id) - 1
	return
}
