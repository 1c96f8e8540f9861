package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func newTestSQLite(t *testing.T, key string) *SQLite[counterState] {
	t.Helper()

	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLite[counterState](db, key)
	require.NoError(t, err)
	return store
}

func TestMemory(t *testing.T) {
	m := NewMemory()

	_, ok, err := m.Get()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(3))
	v, ok, err := m.Get()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, m.Saves())

	require.NoError(t, m.Purge())
	_, ok, _ = m.Get()
	assert.False(t, ok)
}

func TestSQLite(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		store := newTestSQLite(t, "counter")

		v, ok, err := store.Get()
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		store := newTestSQLite(t, "counter")

		require.NoError(t, store.Set(counterState{Count: 2, Tags: []string{"a"}}))
		require.NoError(t, store.Set(counterState{Count: 5, Tags: []string{"a", "b"}}))

		v, ok, err := store.Get()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, counterState{Count: 5, Tags: []string{"a", "b"}}, v)
	})

	t.Run("keys are isolated", func(t *testing.T) {
		db, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		a, err := NewSQLite[counterState](db, "a")
		require.NoError(t, err)
		b, err := NewSQLite[counterState](db, "b")
		require.NoError(t, err)

		require.NoError(t, a.Set(counterState{Count: 1}))

		_, ok, err := b.Get()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("purge", func(t *testing.T) {
		store := newTestSQLite(t, "counter")
		require.NoError(t, store.Set(counterState{Count: 1}))
		require.NoError(t, store.Purge())

		_, ok, err := store.Get()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wrong type", func(t *testing.T) {
		store := newTestSQLite(t, "counter")
		assert.ErrorIs(t, store.Set("nope"), ErrStateType)
	})
}
