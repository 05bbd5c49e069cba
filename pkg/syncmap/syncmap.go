package syncmap

import (
	"sync"

	"go.uber.org/atomic"
)

// Map is a type-safe wrapper around sync.Map. Entries are only ever added,
// which is what the bucket and shard tables need.
type Map[K comparable, V any] struct {
	m     sync.Map
	count atomic.Int64
}

// Store stores the value for the key.
func (m *Map[K, V]) Store(key K, value V) {
	if _, loaded := m.m.Swap(key, value); !loaded {
		m.count.Inc()
	}
}

// Load loads the value for the key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	value, ok := m.m.Load(key)
	if !ok {
		var zero V

		return zero, false
	}

	return value.(V), true
}

// LoadOrStore returns the existing value for the key if present, otherwise it
// stores and returns the given value. Concurrent callers always observe the same value.
func (m *Map[K, V]) LoadOrStore(key K, value V) (V, bool) {
	actual, loaded := m.m.LoadOrStore(key, value)
	if !loaded {
		m.count.Inc()
	}

	return actual.(V), loaded
}

// Range calls f for each key-value pair in the map until f returns false.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

// Values returns a snapshot of every value.
func (m *Map[K, V]) Values() []V {
	values := make([]V, 0, m.Count())

	m.Range(func(_ K, value V) bool {
		values = append(values, value)

		return true
	})

	return values
}

// Count returns the number of items in the map.
func (m *Map[K, V]) Count() int {
	return int(m.count.Load())
}
