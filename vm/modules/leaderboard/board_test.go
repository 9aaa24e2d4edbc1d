package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/internal/testutil"
	"github.com/tolelom/procrastichain/vm/modules/streak"
)

func TestEmptyLeaderboard(t *testing.T) {
	st := testutil.NewStateDB()
	b := New(streak.New(), 0)
	require.Equal(t, DefaultCapacity, b.Capacity())

	rows, err := b.GetLeaderboard(st)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestUpdateAppendsThenOverwritesInPlace(t *testing.T) {
	st := testutil.NewStateDB()
	tr := streak.New()
	b := New(tr, 10)
	require.NoError(t, tr.Start(st, "alice", 0))
	require.NoError(t, tr.Start(st, "bob", 5))

	_, err := b.UpdateMyPosition(testutil.NewContext(st, 10, "alice"))
	require.NoError(t, err)
	rows, err := b.UpdateMyPosition(testutil.NewContext(st, 20, "bob"))
	require.NoError(t, err)
	require.Equal(t, []core.LeaderboardEntry{
		{User: "alice", Blocks: 10},
		{User: "bob", Blocks: 15},
	}, rows)

	rows, err = b.UpdateMyPosition(testutil.NewContext(st, 100, "alice"))
	require.NoError(t, err)
	require.Equal(t, []core.LeaderboardEntry{
		{User: "alice", Blocks: 100},
		{User: "bob", Blocks: 15},
	}, rows)

	// Repeating the call only refreshes the value.
	rows, err = b.UpdateMyPosition(testutil.NewContext(st, 100, "alice"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "alice", rows[0].User)

	stored, err := b.GetLeaderboard(st)
	require.NoError(t, err)
	require.Equal(t, rows, stored)
}

func TestUpdateWithoutStreakPostsZero(t *testing.T) {
	st := testutil.NewStateDB()
	b := New(streak.New(), 10)

	rows, err := b.UpdateMyPosition(testutil.NewContext(st, 500, "carol"))
	require.NoError(t, err)
	require.Equal(t, []core.LeaderboardEntry{{User: "carol", Blocks: 0}}, rows)
}

func TestCapacityLimitsNewRows(t *testing.T) {
	st := testutil.NewStateDB()
	b := New(streak.New(), 2)

	_, err := b.UpdateMyPosition(testutil.NewContext(st, 1, "a"))
	require.NoError(t, err)
	_, err = b.UpdateMyPosition(testutil.NewContext(st, 1, "b"))
	require.NoError(t, err)

	_, err = b.UpdateMyPosition(testutil.NewContext(st, 1, "c"))
	require.ErrorIs(t, err, core.ErrLeaderboardFull)

	// Existing rows can still be refreshed.
	_, err = b.UpdateMyPosition(testutil.NewContext(st, 2, "a"))
	require.NoError(t, err)
}
