package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlRahman/vector-database/store"
	"github.com/lhlRahman/vector-database/vector"
)

func vec(t *testing.T, vs ...float32) vector.Vector {
	t.Helper()
	v, err := vector.FromSlice(vs)
	require.NoError(t, err)
	return v
}

func TestInsertRejectsDuplicateKey(t *testing.T) {
	m := store.New()
	_, err := m.Insert("a", vec(t, 1, 2), nil)
	require.NoError(t, err)

	_, err = m.Insert("a", vec(t, 3, 4), nil)
	assert.ErrorIs(t, err, store.ErrKeyExists)
}

func TestUpdateKeepsSameID(t *testing.T) {
	m := store.New()
	id, err := m.Insert("a", vec(t, 1, 2), []byte("meta1"))
	require.NoError(t, err)

	id2, err := m.Update("a", vec(t, 9, 9), []byte("meta2"))
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	rec, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.True(t, vec(t, 9, 9).Equal(rec.Vector))
	assert.Equal(t, []byte("meta2"), rec.Metadata)
}

func TestUpdateMissingKeyFails(t *testing.T) {
	m := store.New()
	_, err := m.Update("missing", vec(t, 1), nil)
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestDeleteReturnsIDAndRemoves(t *testing.T) {
	m := store.New()
	id, err := m.Insert("a", vec(t, 1, 2), nil)
	require.NoError(t, err)

	delID, err := m.Delete("a")
	require.NoError(t, err)
	assert.Equal(t, id, delID)
	assert.False(t, m.Contains("a"))

	_, err = m.Delete("a")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestGetByID(t *testing.T) {
	m := store.New()
	id, err := m.Insert("a", vec(t, 1, 2), []byte("x"))
	require.NoError(t, err)

	rec, ok := m.GetByID(id)
	require.True(t, ok)
	assert.Equal(t, "a", rec.Key)

	_, ok = m.GetByID(id + 999)
	assert.False(t, ok)
}

func TestForEachVisitsAllLiveRecords(t *testing.T) {
	m := store.New()
	_, _ = m.Insert("a", vec(t, 1), nil)
	_, _ = m.Insert("b", vec(t, 2), nil)
	_, _ = m.Insert("c", vec(t, 3), nil)
	_, _ = m.Delete("b")

	seen := map[string]bool{}
	m.ForEach(func(r store.Record) bool {
		seen[r.Key] = true
		return true
	})
	assert.Equal(t, map[string]bool{"a": true, "c": true}, seen)
	assert.Equal(t, 2, m.Len())
}

func TestResetClearsEverything(t *testing.T) {
	m := store.New()
	_, _ = m.Insert("a", vec(t, 1), nil)
	m.Reset()
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Contains("a"))

	id, err := m.Insert("a", vec(t, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestGetMetadataDoesNotAliasCaller(t *testing.T) {
	m := store.New()
	meta := []byte("secret")
	_, err := m.Insert("a", vec(t, 1), meta)
	require.NoError(t, err)

	got, err := m.GetMetadata("a")
	require.NoError(t, err)
	got[0] = 'X'

	got2, err := m.GetMetadata("a")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got2))
}
