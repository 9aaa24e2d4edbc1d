package streak

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/internal/testutil"
)

func TestGetBlocksNeverStarted(t *testing.T) {
	st := testutil.NewStateDB()
	tr := New()

	blocks, err := tr.GetBlocks(st, "alice", 500)
	require.NoError(t, err)
	require.Zero(t, blocks)

	days, err := tr.GetDays(st, "alice", 500)
	require.NoError(t, err)
	require.Zero(t, days)
}

func TestBlocksAndDaysTrackElapsedTicks(t *testing.T) {
	st := testutil.NewStateDB()
	tr := New()
	require.NoError(t, tr.Start(st, "alice", 10))

	for _, tick := range []int64{10, 11, 153, 154, 10 + 7*core.TicksPerDay, 5000} {
		blocks, err := tr.GetBlocks(st, "alice", tick)
		require.NoError(t, err)
		require.Equal(t, tick-10, blocks)

		days, err := tr.GetDays(st, "alice", tick)
		require.NoError(t, err)
		require.Equal(t, blocks/core.TicksPerDay, days)
	}
}

func TestGetBlocksSaturatesBeforeStart(t *testing.T) {
	st := testutil.NewStateDB()
	tr := New()
	require.NoError(t, tr.Start(st, "alice", 100))

	blocks, err := tr.GetBlocks(st, "alice", 50)
	require.NoError(t, err)
	require.Zero(t, blocks)
}

func TestResetRestartsAndCounts(t *testing.T) {
	st := testutil.NewStateDB()
	tr := New()
	require.NoError(t, tr.Start(st, "alice", 0))
	require.NoError(t, tr.Reset(st, "alice", 300))

	blocks, err := tr.GetBlocks(st, "alice", 310)
	require.NoError(t, err)
	require.Equal(t, int64(10), blocks)

	s, err := tr.Get(st, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(300), s.StartTick)
	require.Equal(t, uint64(1), s.ResetCount)

	// Restarting keeps the reset history.
	require.NoError(t, tr.Start(st, "alice", 400))
	s, err = tr.Get(st, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.ResetCount)
}

func TestStreaksAreIndependent(t *testing.T) {
	st := testutil.NewStateDB()
	tr := New()
	require.NoError(t, tr.Start(st, "alice", 0))
	require.NoError(t, tr.Start(st, "bob", 144))

	a, err := tr.GetDays(st, "alice", 288)
	require.NoError(t, err)
	b, err := tr.GetDays(st, "bob", 288)
	require.NoError(t, err)
	require.Equal(t, int64(2), a)
	require.Equal(t, int64(1), b)
}
