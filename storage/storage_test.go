package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/internal/testutil"
	"github.com/tolelom/procrastichain/storage"
)

func balance(t *testing.T, st core.State, addr string) uint64 {
	t.Helper()
	acc, err := st.GetAccount(addr)
	require.NoError(t, err)
	return acc.Balance
}

func TestStateDBNestedSnapshots(t *testing.T) {
	st := testutil.NewStateDB()
	require.NoError(t, st.SetAccount(&core.Account{Address: "a", Balance: 1}))

	block, err := st.Snapshot()
	require.NoError(t, err)
	require.NoError(t, st.SetAccount(&core.Account{Address: "a", Balance: 2}))

	tx, err := st.Snapshot()
	require.NoError(t, err)
	require.NoError(t, st.SetAccount(&core.Account{Address: "a", Balance: 3}))
	require.NoError(t, st.SetAccount(&core.Account{Address: "b", Balance: 9}))

	require.NoError(t, st.RevertToSnapshot(tx))
	require.Equal(t, uint64(2), balance(t, st, "a"))
	require.Zero(t, balance(t, st, "b"))

	require.NoError(t, st.RevertToSnapshot(block))
	require.Equal(t, uint64(1), balance(t, st, "a"))

	require.Error(t, st.RevertToSnapshot(tx))
}

func TestStateDBCommitAndRoot(t *testing.T) {
	db := testutil.NewMemDB()
	st := storage.NewStateDB(db)
	empty := st.ComputeRoot()

	require.NoError(t, st.SetPool(&core.PoolState{Balance: 50}))
	pending := st.ComputeRoot()
	require.NotEqual(t, empty, pending)

	require.NoError(t, st.Commit())
	require.Equal(t, pending, st.ComputeRoot())

	// A fresh view over the same DB sees committed state only.
	reopened := storage.NewStateDB(db)
	pool, err := reopened.GetPool()
	require.NoError(t, err)
	require.Equal(t, uint64(50), pool.Balance)
	require.Equal(t, pending, reopened.ComputeRoot())
}

func TestCommittedViewIgnoresWriteBuffer(t *testing.T) {
	st := testutil.NewStateDB()
	view := st.Committed()

	require.NoError(t, st.SetPool(&core.PoolState{Balance: 10}))
	require.NoError(t, st.Commit())
	require.NoError(t, st.SetPool(&core.PoolState{Balance: 75}))

	pool, err := view.GetPool()
	require.NoError(t, err)
	require.Equal(t, uint64(10), pool.Balance)

	require.NoError(t, st.Commit())
	pool, err = view.GetPool()
	require.NoError(t, err)
	require.Equal(t, uint64(75), pool.Balance)

	require.ErrorIs(t, view.SetPool(&core.PoolState{Balance: 1}), storage.ErrReadOnly)
	require.ErrorIs(t, view.SetLastTokenID(3), storage.ErrReadOnly)
}

func TestBlockStore(t *testing.T) {
	bs := testutil.NewMemBlockStore()
	tip, err := bs.GetTip()
	require.NoError(t, err)
	require.Empty(t, tip)

	b := core.NewBlock(7, "parent", "", nil)
	b.Hash = b.ComputeHash()
	require.NoError(t, bs.CommitBlock(b))

	tip, err = bs.GetTip()
	require.NoError(t, err)
	require.Equal(t, b.Hash, tip)

	got, err := bs.GetBlockByHeight(7)
	require.NoError(t, err)
	require.Equal(t, b.Header, got.Header)

	_, err = bs.GetBlockByHeight(8)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	st := storage.NewStateDB(db)
	require.NoError(t, st.SetAccount(&core.Account{Address: "alice", Balance: 42}))
	require.NoError(t, st.Commit())
	root := st.ComputeRoot()

	bc := core.NewBlockchain(storage.NewLevelBlockStore(db))
	genesis := core.NewBlock(0, "", "", nil)
	genesis.Hash = genesis.ComputeHash()
	require.NoError(t, bc.AddBlock(genesis))
	require.NoError(t, db.Close())

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()

	st = storage.NewStateDB(db)
	require.Equal(t, uint64(42), balance(t, st, "alice"))
	require.Equal(t, root, st.ComputeRoot())

	bc = core.NewBlockchain(storage.NewLevelBlockStore(db))
	require.NoError(t, bc.Init())
	require.Equal(t, genesis.Hash, bc.Tip().Hash)

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, core.ErrNotFound)
}
