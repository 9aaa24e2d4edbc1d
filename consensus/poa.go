// Package consensus implements Proof-of-Authority block production.
// Validators propose blocks in round-robin order. Each block is signed by
// the proposer; other nodes verify the signature before accepting the block.
// Block height is the protocol tick.
package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tolelom/procrastichain/config"
	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/crypto"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/vm"
)

const defaultMaxBlockTxs = 500

// PoA is the Proof-of-Authority consensus engine.
type PoA struct {
	cfg     *config.Config
	bc      *core.Blockchain
	state   core.State
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
	log     *zap.Logger
}

// New creates a PoA engine for the local validator identified by privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	log *zap.Logger,
) *PoA {
	if log == nil {
		log = zap.NewNop()
	}
	return &PoA{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
		log:     log.Named("consensus"),
	}
}

// IsProposer reports whether this node should propose the next block.
func (p *PoA) IsProposer() bool {
	if len(p.cfg.Validators) == 0 {
		return false
	}
	nextHeight := p.bc.Height() + 1
	idx := int(nextHeight) % len(p.cfg.Validators)
	return p.cfg.Validators[idx] == p.pubKey.Hex()
}

// ProduceBlock executes pending transactions one at a time, then signs and
// commits the next block. A transaction that fails is rolled back, left out
// of the block and dropped from the mempool; its failed receipt is still
// published. The returned receipts cover every transaction attempted.
func (p *PoA) ProduceBlock() (*core.Block, []*core.Receipt, error) {
	if !p.IsProposer() {
		return nil, nil, errors.New("not the proposer for this round")
	}

	limit := p.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = defaultMaxBlockTxs
	}
	if n := p.mempool.Prune(); n > 0 {
		p.log.Info("pruned expired txs", zap.Int("count", n))
	}
	pending := p.mempool.Pending(limit)

	tip := p.bc.Tip()
	var prevHash string
	var nextHeight int64
	if tip == nil {
		prevHash = config.GenesisHash
		nextHeight = 1
	} else {
		prevHash = tip.Hash
		nextHeight = tip.Header.Height + 1
	}

	block := core.NewBlock(nextHeight, prevHash, p.pubKey.Hex(), nil)

	blockSnap, err := p.state.Snapshot()
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	// Tx events are held back until the block is stored and its state
	// committed, so the indexer and journal never record a block that failed.
	var buf events.Buffer
	included := make([]*core.Transaction, 0, len(pending))
	receipts := make([]*core.Receipt, 0, len(pending))
	for _, tx := range pending {
		receipt, err := p.exec.ExecuteTxTo(&buf, block, tx)
		if receipt == nil {
			// The executor could not roll the tx back; abandon the whole block.
			if revertErr := p.state.RevertToSnapshot(blockSnap); revertErr != nil {
				p.log.Error("revert block after executor failure", zap.Error(revertErr))
			}
			return nil, nil, fmt.Errorf("execute tx %s: %w", tx.ID, err)
		}
		receipts = append(receipts, receipt)
		if err != nil {
			p.log.Debug("tx rejected",
				zap.String("tx", tx.ID),
				zap.String("type", string(tx.Type)),
				zap.Uint32("code", receipt.Code),
				zap.Error(err))
			continue
		}
		included = append(included, tx)
	}
	block.SetTransactions(included)

	// Compute root from the write buffer BEFORE flushing so that if AddBlock
	// fails the state has not yet been persisted and the node stays consistent.
	block.Header.StateRoot = p.state.ComputeRoot()
	block.Sign(p.privKey)

	if err := p.bc.AddBlock(block); err != nil {
		if revertErr := p.state.RevertToSnapshot(blockSnap); revertErr != nil {
			p.log.Error("revert block after add failure", zap.Error(revertErr))
		}
		return nil, nil, fmt.Errorf("add block: %w", err)
	}

	// Flush state only after the block is safely stored.
	if err := p.state.Commit(); err != nil {
		p.log.Fatal("block stored but state commit failed",
			zap.Int64("height", block.Header.Height), zap.Error(err))
	}

	buf.Flush(p.emitter)
	// Emit after Sign() so block.Hash is set correctly.
	p.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data: map[string]any{
			"hash":     block.Hash,
			"txs":      len(block.Transactions),
			"rejected": len(pending) - len(included),
		},
	})

	txIDs := make([]string, len(pending))
	for i, tx := range pending {
		txIDs[i] = tx.ID
	}
	p.mempool.Remove(txIDs)

	return block, receipts, nil
}

// ValidateBlock checks that block was proposed by the expected validator.
func (p *PoA) ValidateBlock(block *core.Block) error {
	if len(p.cfg.Validators) == 0 {
		return errors.New("no validators configured")
	}
	idx := int(block.Header.Height) % len(p.cfg.Validators)
	expected := p.cfg.Validators[idx]
	if block.Header.Proposer != expected {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, expected)
	}

	pub, err := crypto.PubKeyFromHex(block.Header.Proposer)
	if err != nil {
		return fmt.Errorf("invalid proposer pubkey: %w", err)
	}
	if err := block.Verify(pub); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}

	tip := p.bc.Tip()
	if tip == nil {
		if !config.IsGenesisHash(block.Header.PrevHash) {
			return errors.New("first block must reference genesis prev-hash")
		}
	} else {
		if block.Header.PrevHash != tip.Hash {
			return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
		}
		if block.Header.Height != tip.Header.Height+1 {
			return fmt.Errorf("height mismatch: got %d want %d", block.Header.Height, tip.Header.Height+1)
		}
	}
	return nil
}

// Run produces blocks on cfg.BlockSchedule until ctx is cancelled. Rounds
// never overlap: a round still running when the next fires is skipped.
func (p *PoA) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(p.cfg.BlockSchedule, p.round); err != nil {
		return fmt.Errorf("register block schedule %q: %w", p.cfg.BlockSchedule, err)
	}
	c.Start()
	p.log.Info("block production started",
		zap.String("schedule", p.cfg.BlockSchedule),
		zap.String("validator", p.pubKey.Hex()))

	<-ctx.Done()
	<-c.Stop().Done()
	p.log.Info("block production stopped")
	return nil
}

func (p *PoA) round() {
	if !p.IsProposer() {
		return
	}
	block, receipts, err := p.ProduceBlock()
	if err != nil {
		p.log.Warn("produce block", zap.Error(err))
		return
	}
	p.log.Debug("block committed",
		zap.Int64("height", block.Header.Height),
		zap.Int("txs", len(block.Transactions)),
		zap.Int("receipts", len(receipts)))
}
