package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/tolelom/procrastichain/core"
)

// LevelDB is the on-disk DB used by a running node. State, blocks and the
// indexer share one database under different key prefixes.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path. A database left
// corrupted by a crash is recovered once before giving up.
func NewLevelDB(path string) (*LevelDB, error) {
	o := &opt.Options{
		OpenFilesCacheCapacity: 256,
		BlockCacheCapacity:     16 * 1024 * 1024, // 16MB
		WriteBuffer:            8 * 1024 * 1024,  // 8MB
	}
	db, err := leveldb.OpenFile(path, o)
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, o)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, core.ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

// NewBatch returns a batch whose Write is fsynced, since a batch commits a
// whole block.
func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, b: new(leveldb.Batch)}
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelBatch struct {
	db *leveldb.DB
	b  *leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) { b.b.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.b.Delete(key) }
func (b *levelBatch) Reset()                { b.b.Reset() }
func (b *levelBatch) Write() error          { return b.db.Write(b.b, &opt.WriteOptions{Sync: true}) }

// NewLevelBlockStore returns a BlockStore kept in db.
func NewLevelBlockStore(db *LevelDB) *BlockStore {
	return NewBlockStore(db)
}
