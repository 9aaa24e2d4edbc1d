package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/procrastichain/config"
	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/crypto"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/indexer"
	"github.com/tolelom/procrastichain/internal/testutil"
	"github.com/tolelom/procrastichain/protocol"
	"github.com/tolelom/procrastichain/storage"
	"github.com/tolelom/procrastichain/vm"
)

type node struct {
	cfg     *config.Config
	bc      *core.Blockchain
	state   *storage.StateDB
	mempool *core.Mempool
	emitter *events.Emitter
	idx     *indexer.Indexer
	poa     *PoA
}

func newNode(t *testing.T, alloc map[string]uint64) *node {
	t.Helper()
	return newNodeWithStore(t, alloc, testutil.NewMemBlockStore())
}

func newNodeWithStore(t *testing.T, alloc map[string]uint64, store core.BlockStore) *node {
	t.Helper()
	priv, pub := testutil.NewKey(t)
	cfg := config.DefaultConfig()
	cfg.Validators = []string{pub}
	cfg.BlockSchedule = "@every 1s"
	for k, v := range alloc {
		cfg.Genesis.Alloc[k] = v
	}

	state := testutil.NewStateDB()
	bc := core.NewBlockchain(store)
	require.NoError(t, bc.Init())
	genesis, err := config.CreateGenesisBlock(cfg, state, priv)
	require.NoError(t, err)
	require.NoError(t, bc.AddBlock(genesis))

	proto, err := protocol.New(cfg.Protocol)
	require.NoError(t, err)
	emitter := events.NewEmitter(nil)
	idx, err := indexer.New(testutil.NewMemDB(), emitter, nil)
	require.NoError(t, err)
	exec := vm.NewExecutor(state, proto.NewRegistry(), emitter)
	mempool := core.NewMempool(cfg.Genesis.ChainID)

	return &node{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		emitter: emitter,
		idx:     idx,
		poa:     New(cfg, bc, state, mempool, exec, emitter, priv, nil),
	}
}

func (n *node) submit(t *testing.T, priv crypto.PrivateKey, nonce uint64, typ core.TxType, payload any) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(n.cfg.Genesis.ChainID, typ, priv.Public().Hex(), nonce, 0, payload)
	require.NoError(t, err)
	tx.Sign(priv)
	require.NoError(t, n.mempool.Add(tx))
	return tx
}

func TestProduceBlockDropsFailedTxs(t *testing.T) {
	alicePriv, alice := testutil.NewKey(t)
	n := newNode(t, map[string]uint64{alice: 1_000})

	good := n.submit(t, alicePriv, 0, core.TxStartProcrastinating, core.StakePayload{Amount: 600})
	bad := n.submit(t, alicePriv, 1, core.TxStartProcrastinating, core.StakePayload{Amount: 100})
	after := n.submit(t, alicePriv, 1, core.TxUpdateMyPosition, nil)

	require.True(t, n.poa.IsProposer())
	block, receipts, err := n.poa.ProduceBlock()
	require.NoError(t, err)
	require.Equal(t, int64(1), block.Header.Height)
	require.Len(t, receipts, 3)
	require.Equal(t, core.ReceiptOK, receipts[0].Status)
	require.Equal(t, "ALREADY_ACTIVE", receipts[1].Symbol)
	require.Equal(t, core.ReceiptOK, receipts[2].Status)

	ids := []string{block.Transactions[0].ID, block.Transactions[1].ID}
	require.Equal(t, []string{good.ID, after.ID}, ids)
	require.NotContains(t, ids, bad.ID)
	require.Zero(t, n.mempool.Size())
	require.Equal(t, int64(1), n.bc.Height())

	pos, err := n.state.GetPosition(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(600), pos.LockedAmount)
}

// flakyStore refuses to commit blocks while broken is set.
type flakyStore struct {
	*storage.BlockStore
	broken bool
}

func (s *flakyStore) CommitBlock(block *core.Block) error {
	if s.broken {
		return errors.New("disk full")
	}
	return s.BlockStore.CommitBlock(block)
}

func TestFailedBlockPublishesNothing(t *testing.T) {
	alicePriv, alice := testutil.NewKey(t)
	store := &flakyStore{BlockStore: testutil.NewMemBlockStore()}
	n := newNodeWithStore(t, map[string]uint64{alice: 1_000}, store)

	var started, commits int
	n.emitter.Subscribe(events.EventStakeStarted, func(events.Event) { started++ })
	n.emitter.Subscribe(events.EventBlockCommit, func(events.Event) { commits++ })

	tx := n.submit(t, alicePriv, 0, core.TxStartProcrastinating, core.StakePayload{Amount: 600})

	store.broken = true
	_, _, err := n.poa.ProduceBlock()
	require.Error(t, err)
	require.Zero(t, n.bc.Height())
	require.Equal(t, 1, n.mempool.Size())

	pos, err := n.state.GetPosition(alice)
	require.NoError(t, err)
	require.Zero(t, pos.LockedAmount)
	_, err = n.idx.GetReceipt(tx.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
	require.Zero(t, started)
	require.Zero(t, commits)

	store.broken = false
	block, _, err := n.poa.ProduceBlock()
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)

	receipt, err := n.idx.GetReceipt(tx.ID)
	require.NoError(t, err)
	require.Equal(t, core.ReceiptOK, receipt.Status)
	require.Equal(t, block.Header.Height, receipt.BlockHeight)
	require.Equal(t, 1, started)
	require.Equal(t, 1, commits)

	pos, err = n.state.GetPosition(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(600), pos.LockedAmount)
}

func TestValidateBlock(t *testing.T) {
	n := newNode(t, nil)
	block, _, err := n.poa.ProduceBlock()
	require.NoError(t, err)

	// Already the tip: a second copy no longer links.
	require.Error(t, n.poa.ValidateBlock(block))

	other, _ := testutil.NewKey(t)
	forged := core.NewBlock(2, block.Hash, "", nil)
	forged.Sign(other)
	require.Error(t, n.poa.ValidateBlock(forged))
}

func TestNotProposer(t *testing.T) {
	n := newNode(t, nil)
	_, pub := testutil.NewKey(t)
	n.cfg.Validators = []string{pub}
	require.False(t, n.poa.IsProposer())
	_, _, err := n.poa.ProduceBlock()
	require.Error(t, err)
}

func TestRunProducesOnSchedule(t *testing.T) {
	n := newNode(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.poa.Run(ctx) }()

	require.Eventually(t, func() bool { return n.bc.Height() >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
