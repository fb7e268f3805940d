package sync

import (
	"maps"
	"sync"
)

// Map is like a Go map[K]V but is safe for concurrent use by multiple goroutines.
type Map[K comparable, V any] struct {
	mutex sync.RWMutex
	data  map[K]V
}

// NewMap creates map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		data: make(map[K]V),
	}
}

// Store sets the value for a key.
func (m *Map[K, V]) Store(key K, value V) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.data[key] = value
}

// Load returns the value stored in the map for a key. The ok result indicates whether value was found in the map.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	value, ok = m.data[key]
	return value, ok
}

// Contains reports whether a value is stored for key.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Load(key)
	return ok
}

// LoadAndDelete loads and deletes the value for a key.
func (m *Map[K, V]) LoadAndDelete(key K) (value V, ok bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	value, ok = m.data[key]
	delete(m.data, key)
	return value, ok
}

// LoadAndDeleteAll extracts internal map data and replace it with empty map.
func (m *Map[K, V]) LoadAndDeleteAll() map[K]V {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	data := m.data
	m.data = make(map[K]V)
	return data
}

// CopyData returns a copy of the stored data, taken under the read lock.
func (m *Map[K, V]) CopyData() map[K]V {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return maps.Clone(m.data)
}

// Length returns number of stored values.
func (m *Map[K, V]) Length() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.data)
}
