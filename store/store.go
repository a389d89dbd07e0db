// Package store implements the authoritative keyed map: the single
// source of truth for which vectors exist, addressed by an
// application-chosen string key. Every index is a derived, rebuildable
// view over this map; nothing is durable until the WAL and snapshot
// layers have seen it.
package store

import (
	"errors"
	"sync"

	"github.com/lhlRahman/vector-database/vector"
)

// ErrKeyExists is returned by Insert when key is already present.
var ErrKeyExists = errors.New("store: key already exists")

// ErrKeyNotFound is returned by Update, Delete, Get and GetMetadata when
// key is not present.
var ErrKeyNotFound = errors.New("store: key not found")

// Record is one entry in the map: a stable numeric id assigned at
// insert time, the vector itself, and an opaque metadata payload the
// store never interprets. The indexes do not use this id; the database
// façade keys them by point ids of its own.
type Record struct {
	ID       uint64
	Key      string
	Vector   vector.Vector
	Metadata []byte
}

type entry struct {
	id       uint64
	key      string
	vector   vector.Vector
	metadata []byte
}

// Map is the keyed vector store. The zero value is not usable; use New.
type Map struct {
	mu     sync.RWMutex
	byKey  map[string]*entry
	byID   map[uint64]*entry
	nextID uint64
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		byKey: make(map[string]*entry),
		byID:  make(map[uint64]*entry),
	}
}

// Insert adds a new record under key, assigning it a fresh stable id.
// It fails with ErrKeyExists if key is already present.
func (m *Map) Insert(key string, v vector.Vector, metadata []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[key]; ok {
		return 0, ErrKeyExists
	}
	m.nextID++
	id := m.nextID
	e := &entry{id: id, key: key, vector: v.Clone(), metadata: cloneBytes(metadata)}
	m.byKey[key] = e
	m.byID[id] = e
	return id, nil
}

// Update replaces the vector and metadata for an existing key, keeping
// its id unchanged.
func (m *Map) Update(key string, v vector.Vector, metadata []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byKey[key]
	if !ok {
		return 0, ErrKeyNotFound
	}
	e.vector = v.Clone()
	e.metadata = cloneBytes(metadata)
	return e.id, nil
}

// Delete removes key, returning the id it held so the caller can
// tombstone every index's entry for it.
func (m *Map) Delete(key string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byKey[key]
	if !ok {
		return 0, ErrKeyNotFound
	}
	delete(m.byKey, key)
	delete(m.byID, e.id)
	return e.id, nil
}

// Get returns the record stored under key.
func (m *Map) Get(key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byKey[key]
	if !ok {
		return Record{}, ErrKeyNotFound
	}
	return toRecord(e), nil
}

// GetByID returns the record with the given stable id, as assigned at
// insert time.
func (m *Map) GetByID(id uint64) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok {
		return Record{}, false
	}
	return toRecord(e), true
}

// GetMetadata returns only the metadata stored under key, avoiding a
// vector clone when the caller does not need it.
func (m *Map) GetMetadata(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byKey[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return cloneBytes(e.metadata), nil
}

// Contains reports whether key is present.
func (m *Map) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byKey[key]
	return ok
}

// Len returns the number of live records.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}

// ForEach calls fn for every live record in unspecified order, stopping
// early if fn returns false. Used to drive index Rebuild and snapshot
// writing.
func (m *Map) ForEach(fn func(Record) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.byID {
		if !fn(toRecord(e)) {
			return
		}
	}
}

// Reset discards every record, for use by the recovery state machine
// when replacing the map wholesale from a snapshot.
func (m *Map) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey = make(map[string]*entry)
	m.byID = make(map[uint64]*entry)
	m.nextID = 0
}

func toRecord(e *entry) Record {
	return Record{ID: e.id, Key: e.key, Vector: e.vector, Metadata: cloneBytes(e.metadata)}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
