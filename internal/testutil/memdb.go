// Package testutil provides in-memory storage and execution helpers shared
// by the module's tests. Never import this in production code.
package testutil

import (
	"bytes"
	"sort"
	"strings"
	"sync"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/storage"
)

// MemDB is a thread-safe in-memory storage.DB. Iteration is in key order,
// like LevelDB.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB creates an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemDB) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = bytes.Clone(value)
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// NewIterator snapshots the matching pairs; later writes are not observed.
func (m *MemDB) NewIterator(prefix []byte) storage.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it := &memIter{idx: -1}
	for k, v := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			it.keys = append(it.keys, k)
			it.vals = append(it.vals, bytes.Clone(v))
		}
	}
	sort.Sort(it)
	return it
}

func (m *MemDB) NewBatch() storage.Batch {
	return &memBatch{db: m}
}

func (m *MemDB) Close() error { return nil }

type memBatch struct {
	db   *MemDB
	keys []string
	vals [][]byte // nil value deletes
}

func (b *memBatch) Set(key, value []byte) {
	b.keys = append(b.keys, string(key))
	b.vals = append(b.vals, append([]byte{}, value...))
}

func (b *memBatch) Delete(key []byte) {
	b.keys = append(b.keys, string(key))
	b.vals = append(b.vals, nil)
}

func (b *memBatch) Reset() { b.keys, b.vals = nil, nil }

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for i, k := range b.keys {
		if b.vals[i] == nil {
			delete(b.db.data, k)
			continue
		}
		b.db.data[k] = b.vals[i]
	}
	return nil
}

type memIter struct {
	keys []string
	vals [][]byte
	idx  int
}

func (it *memIter) Len() int           { return len(it.keys) }
func (it *memIter) Less(i, j int) bool { return it.keys[i] < it.keys[j] }
func (it *memIter) Swap(i, j int) {
	it.keys[i], it.keys[j] = it.keys[j], it.keys[i]
	it.vals[i], it.vals[j] = it.vals[j], it.vals[i]
}

func (it *memIter) Next() bool    { it.idx++; return it.idx < len(it.keys) }
func (it *memIter) Key() []byte   { return []byte(it.keys[it.idx]) }
func (it *memIter) Value() []byte { return it.vals[it.idx] }
func (it *memIter) Release()      {}
func (it *memIter) Error() error  { return nil }

// NewMemBlockStore returns a block store over a fresh MemDB.
func NewMemBlockStore() *storage.BlockStore {
	return storage.NewBlockStore(NewMemDB())
}

// NewStateDB returns a storage.StateDB backed by a fresh MemDB.
func NewStateDB() *storage.StateDB {
	return storage.NewStateDB(NewMemDB())
}
