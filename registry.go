package etl

import (
	"sync"

	"github.com/pkg/errors"
)

// Registry maps canonical labels in a named space (entities, regions,
// units) to stable monotonic integer ids and back. The import stage uses it
// to assign entity ids that never change between runs. Implementations
// must be threadsafe and allocate ids monotonically from zero.
type Registry interface {
	Get(space string, id uint64) (string, error)
	GetID(space string, label string) (uint64, error)
}

// SpaceRegistry works like a Registry scoped to a single space. A Registry
// implementation typically holds one SpaceRegistry per space.
type SpaceRegistry interface {
	Get(id uint64) (string, error)
	GetID(label string) (uint64, error)
}

// MapRegistry is an in-memory Registry backed by maps. It is the right
// choice inside a single run; anything that must survive between runs uses
// the LevelRegistry instead.
type MapRegistry struct {
	lock   sync.RWMutex
	spaces map[string]*MapSpaceRegistry
}

// NewMapRegistry creates an empty MapRegistry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{
		spaces: make(map[string]*MapSpaceRegistry),
	}
}

func (m *MapRegistry) space(name string) *MapSpaceRegistry {
	m.lock.RLock()
	if sr, ok := m.spaces[name]; ok {
		m.lock.RUnlock()
		return sr
	}
	m.lock.RUnlock()
	m.lock.Lock()
	defer m.lock.Unlock()
	if sr, ok := m.spaces[name]; ok {
		return sr
	}
	m.spaces[name] = NewMapSpaceRegistry()
	return m.spaces[name]
}

// Get returns the label mapped to id in the given space.
func (m *MapRegistry) Get(space string, id uint64) (string, error) {
	label, err := m.space(space).Get(id)
	if err != nil {
		return "", errors.Wrapf(err, "space '%v', id %v", space, id)
	}
	return label, nil
}

// GetID returns the id for the label in the given space, allocating a new
// one if the label has not been seen.
func (m *MapRegistry) GetID(space string, label string) (uint64, error) {
	return m.space(space).GetID(label)
}

// MapSpaceRegistry is the in-memory single-space registry: a sync.Map for
// lookups plus a slice for the reverse direction.
type MapSpaceRegistry struct {
	m sync.Map

	n *Nexter

	l      sync.RWMutex
	labels []string
}

// NewMapSpaceRegistry creates an empty MapSpaceRegistry.
func NewMapSpaceRegistry() *MapSpaceRegistry {
	return &MapSpaceRegistry{
		n:      NewNexter(),
		labels: make([]string, 0),
	}
}

// Get returns the label mapped to id.
func (m *MapSpaceRegistry) Get(id uint64) (string, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	if uint64(len(m.labels)) <= id {
		return "", errors.Errorf("unknown id %d", id)
	}
	return m.labels[id], nil
}

// GetID returns the id for the label, allocating the next id if the label
// is new.
func (m *MapSpaceRegistry) GetID(label string) (uint64, error) {
	if idv, ok := m.m.Load(label); ok {
		return idv.(uint64), nil
	}
	m.l.Lock()
	defer m.l.Unlock()
	if idv, ok := m.m.Load(label); ok {
		return idv.(uint64), nil
	}
	nextid := m.n.Next()
	m.labels = append(m.labels, label)
	if uint64(len(m.labels)) != nextid+1 {
		return 0, errors.Errorf("registry out of sync: next id %d, %d labels", nextid, len(m.labels))
	}
	m.m.Store(label, nextid)
	return nextid, nil
}
