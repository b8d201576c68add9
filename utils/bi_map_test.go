package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBiMap(t *testing.T) {
	biMap := NewBiMap(map[string]int{
		"one": 1,
		"two": 2,
	})

	t.Run("Lookup", func(t *testing.T) {
		val, ok := biMap.Lookup("one")
		assert.True(t, ok)
		assert.Equal(t, 1, val)

		_, ok = biMap.Lookup("three")
		assert.False(t, ok)
	})

	t.Run("DirectLookup", func(t *testing.T) {
		assert.Equal(t, 2, biMap.DirectLookup("two"))
		assert.Equal(t, 0, biMap.DirectLookup("three"))
	})

	t.Run("RLookup", func(t *testing.T) {
		key, ok := biMap.RLookup(1)
		assert.True(t, ok)
		assert.Equal(t, "one", key)

		_, ok = biMap.RLookup(3)
		assert.False(t, ok)
	})

	t.Run("Len", func(t *testing.T) {
		assert.Equal(t, 2, biMap.Len())
	})

	t.Run("Immutability", func(t *testing.T) {
		input := map[string]int{"initial": 100}
		m := NewBiMap(input)

		input["initial"] = 999
		input["added"] = 200

		val, ok := m.Lookup("initial")
		assert.True(t, ok)
		assert.Equal(t, 100, val)

		_, ok = m.Lookup("added")
		assert.False(t, ok)

		key, ok := m.RLookup(100)
		assert.True(t, ok)
		assert.Equal(t, "initial", key)
	})
}
