package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/procrastichain/core"
)

var (
	prefixBlock  = []byte("blk:")
	prefixHeight = []byte("tick:")
	keyTip       = []byte("chain:tip")
)

func blockKey(hash string) []byte {
	return append(append([]byte{}, prefixBlock...), hash...)
}

// heightKey is big-endian so blocks iterate in tick order.
func heightKey(height int64) []byte {
	k := make([]byte, len(prefixHeight)+8)
	copy(k, prefixHeight)
	binary.BigEndian.PutUint64(k[len(prefixHeight):], uint64(height))
	return k
}

// BlockStore implements core.BlockStore on any DB.
type BlockStore struct {
	db DB
}

// NewBlockStore wraps db as a core.BlockStore.
func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

func (s *BlockStore) GetBlock(hash string) (*core.Block, error) {
	data, err := s.db.Get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	var b core.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode block %s: %w", hash, err)
	}
	return &b, nil
}

func (s *BlockStore) GetBlockByHeight(height int64) (*core.Block, error) {
	hash, err := s.db.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	return s.GetBlock(string(hash))
}

func (s *BlockStore) GetTip() (string, error) {
	val, err := s.db.Get(keyTip)
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// CommitBlock writes the block, its tick index and the new tip in one batch.
func (s *BlockStore) CommitBlock(block *core.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	batch.Set(blockKey(block.Hash), data)
	batch.Set(heightKey(block.Header.Height), []byte(block.Hash))
	batch.Set(keyTip, []byte(block.Hash))
	return batch.Write()
}
