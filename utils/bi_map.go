package utils

// BiMap is an immutable bidirectional map used for enum<->name tables.
// Construction copies the input, so later changes to the source map do
// not leak in. Duplicate values keep an arbitrary key in the reverse
// direction.
type BiMap[K comparable, V comparable] struct {
	forward map[K]V
	reverse map[V]K
}

// NewBiMap builds both directions from the input mapping.
func NewBiMap[K comparable, V comparable](input map[K]V) *BiMap[K, V] {
	forward := make(map[K]V, len(input))
	reverse := make(map[V]K, len(input))
	for k, v := range input {
		forward[k] = v
		reverse[v] = k
	}
	return &BiMap[K, V]{forward: forward, reverse: reverse}
}

// Lookup finds a value by key.
func (m *BiMap[K, V]) Lookup(key K) (V, bool) {
	value, ok := m.forward[key]
	return value, ok
}

// DirectLookup finds a value by key, returning the zero value when the
// key is absent.
func (m *BiMap[K, V]) DirectLookup(key K) V {
	return m.forward[key]
}

// RLookup finds a key by value.
func (m *BiMap[K, V]) RLookup(value V) (K, bool) {
	key, ok := m.reverse[value]
	return key, ok
}

// Len returns the number of entries.
func (m *BiMap[K, V]) Len() int {
	return len(m.forward)
}
