package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tolelom/procrastichain/crypto"
)

// BlockHeader is the signed part of a block. Height doubles as the protocol
// tick every transaction in the block executes at.
type BlockHeader struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"`
	TxRoot    string `json:"tx_root"`
	Timestamp int64  `json:"timestamp"`
	Proposer  string `json:"proposer"`
}

// Block groups the transactions executed at one tick.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// NewBlock creates an unsigned block at height.
func NewBlock(height int64, prevHash, proposer string, txs []*Transaction) *Block {
	b := &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
	}
	b.SetTransactions(txs)
	return b
}

// Tick is the protocol clock value transactions in this block execute at.
func (b *Block) Tick() int64 {
	return b.Header.Height
}

// TxIDs lists the IDs of the block's transactions in execution order.
func (b *Block) TxIDs() []string {
	ids := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID
	}
	return ids
}

// SetTransactions replaces the block body and recomputes TxRoot.
// Only valid before the block is signed.
func (b *Block) SetTransactions(txs []*Transaction) {
	b.Transactions = txs
	b.Header.TxRoot = ComputeTxRoot(txs)
}

// ComputeHash hashes the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		// A header of strings and integers always marshals.
		panic(fmt.Sprintf("marshal block header: %v", err))
	}
	return crypto.DomainHash("block", data)
}

// Sign sets Hash and signs it with the proposer's key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks that Hash matches the header and that pub signed it.
func (b *Block) Verify(pub crypto.PublicKey) error {
	if want := b.ComputeHash(); b.Hash != want {
		return fmt.Errorf("block hash mismatch: got %s want %s", b.Hash, want)
	}
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// ComputeTxRoot commits to the ordered list of transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return crypto.DomainHash("txroot", []byte(strings.Join(ids, ",")))
}
