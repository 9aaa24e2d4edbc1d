package core

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrHeightGap    = errors.New("block height does not follow tip")
	ErrParentHash   = errors.New("block prev_hash does not match tip")
	ErrUnsignedHash = errors.New("block has no hash")
)

// BlockStore persists blocks. Implementations live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	GetBlockByHeight(height int64) (*Block, error)
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	// CommitBlock writes the block, its height index and the new tip in one
	// batch.
	CommitBlock(block *Block) error
}

// Blockchain tracks the canonical chain. Its tip height is the protocol
// clock, so the tick only ever moves forward.
type Blockchain struct {
	store BlockStore

	mu  sync.RWMutex
	tip *Block
}

// NewBlockchain returns a Blockchain backed by store. Call Init to resume a
// persisted chain.
func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init loads the persisted tip, if any.
func (bc *Blockchain) Init() error {
	hash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if hash == "" {
		return nil
	}
	tip, err := bc.store.GetBlock(hash)
	if err != nil {
		return fmt.Errorf("load tip %s: %w", hash, err)
	}
	bc.mu.Lock()
	bc.tip = tip
	bc.mu.Unlock()
	return nil
}

// AddBlock appends block to the tip and persists it.
func (bc *Blockchain) AddBlock(block *Block) error {
	if block.Hash == "" {
		return ErrUnsignedHash
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.tip != nil {
		if want := bc.tip.Header.Height + 1; block.Header.Height != want {
			return fmt.Errorf("%w: got %d want %d", ErrHeightGap, block.Header.Height, want)
		}
		if block.Header.PrevHash != bc.tip.Hash {
			return fmt.Errorf("%w: got %s want %s", ErrParentHash, block.Header.PrevHash, bc.tip.Hash)
		}
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block %d: %w", block.Header.Height, err)
	}
	bc.tip = block
	return nil
}

// GetBlock returns a block by its hash.
func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	return bc.store.GetBlock(hash)
}

// GetBlockByHeight returns the canonical block at height.
func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the current chain tip, or nil for a fresh chain.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the tip height, 0 for a fresh chain.
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.tip == nil {
		return 0
	}
	return bc.tip.Header.Height
}

// CurrentTick is the tick read-only protocol queries are evaluated at.
func (bc *Blockchain) CurrentTick() int64 {
	return bc.Height()
}
