package temptation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/internal/testutil"
	"github.com/tolelom/procrastichain/storage"
	"github.com/tolelom/procrastichain/vm/modules/pool"
	"github.com/tolelom/procrastichain/vm/modules/streak"
)

func TestCurrentIsPureFunctionOfRemainder(t *testing.T) {
	for rem := int64(0); rem < core.TicksPerDay; rem++ {
		for _, day := range []int64{0, 1, 57} {
			tick := day*core.TicksPerDay + rem
			got, err := Current(tick)
			switch rem {
			case 0:
				require.NoError(t, err)
				require.Equal(t, "Midnight Snack", got.Name)
				require.Equal(t, uint64(1_000_000), got.Bonus)
				require.Equal(t, day*2, got.WindowID)
			case 72:
				require.NoError(t, err)
				require.Equal(t, "Noon Nap", got.Name)
				require.Equal(t, uint64(5_000_000), got.Bonus)
				require.Equal(t, day*2+1, got.WindowID)
			default:
				require.ErrorIs(t, err, core.ErrNoEvent, "tick %d", tick)
				require.Equal(t, uint32(404), core.CodeOf(err))
			}
		}
	}
}

func TestScheduleAtKnownTicks(t *testing.T) {
	g := New(streak.New(), pool.New(nil))

	got, err := g.GetCurrentTemptation(0)
	require.NoError(t, err)
	require.Equal(t, "Midnight Snack", got.Name)

	got, err = g.GetCurrentTemptation(72)
	require.NoError(t, err)
	require.Equal(t, "Noon Nap", got.Name)

	_, err = g.GetCurrentTemptation(73)
	require.ErrorIs(t, err, core.ErrNoEvent)
}

type fixture struct {
	st      *storage.StateDB
	tracker *streak.Tracker
	pool    *pool.Pool
	gen     *Generator
}

func newFixture(t *testing.T, seed uint64) *fixture {
	t.Helper()
	st := testutil.NewStateDB()
	tr := streak.New()
	p := pool.New([]string{core.ModuleAddress(core.ModuleTemptation)})
	g := New(tr, p)
	if seed > 0 {
		testutil.Fund(t, st, "seeder", seed)
		require.NoError(t, p.Deposit(testutil.NewContext(st, 0, "seeder"), "seeder", seed))
	}
	return &fixture{st: st, tracker: tr, pool: p, gen: g}
}

func (f *fixture) stake(t *testing.T, who string, tick int64) {
	t.Helper()
	require.NoError(t, f.st.SetPosition(&core.StakePosition{Owner: who, LockedAmount: 1, Active: true}))
	require.NoError(t, f.tracker.Start(f.st, who, tick))
}

func TestClaimPaysBonusAndResetsStreak(t *testing.T) {
	f := newFixture(t, 10_000_000)
	f.stake(t, "alice", 10)

	ctx := testutil.NewContext(f.st, 144, "alice")
	got, err := f.gen.ClaimTemptation(ctx)
	require.NoError(t, err)
	require.Equal(t, "Midnight Snack", got.Name)
	require.Equal(t, int64(2), got.WindowID)

	require.Equal(t, uint64(1_000_000), testutil.BalanceOf(t, f.st, "alice"))
	bal, err := f.pool.GetBalance(f.st)
	require.NoError(t, err)
	require.Equal(t, uint64(9_000_000), bal)

	blocks, err := f.tracker.GetBlocks(f.st, "alice", 150)
	require.NoError(t, err)
	require.Equal(t, int64(6), blocks)

	claimed, err := f.gen.HasClaimed(f.st, "alice", 2)
	require.NoError(t, err)
	require.True(t, claimed)

	var types []events.EventType
	for _, ev := range ctx.Events() {
		types = append(types, ev.Type)
	}
	require.Equal(t, []events.EventType{
		events.EventStreakReset,
		events.EventPoolWithdraw,
		events.EventTemptationClaimed,
	}, types)
}

func TestClaimTwiceInSameWindowFails(t *testing.T) {
	f := newFixture(t, 10_000_000)
	f.stake(t, "alice", 0)

	_, err := f.gen.ClaimTemptation(testutil.NewContext(f.st, 72, "alice"))
	require.NoError(t, err)

	_, err = f.gen.ClaimTemptation(testutil.NewContext(f.st, 72, "alice"))
	require.ErrorIs(t, err, core.ErrAlreadyClaimed)
	require.Equal(t, uint32(409), core.CodeOf(err))

	// The next window is a new occurrence.
	_, err = f.gen.ClaimTemptation(testutil.NewContext(f.st, 144, "alice"))
	require.NoError(t, err)
}

func TestClaimOutsideWindow(t *testing.T) {
	f := newFixture(t, 10_000_000)
	f.stake(t, "alice", 0)

	_, err := f.gen.ClaimTemptation(testutil.NewContext(f.st, 73, "alice"))
	require.ErrorIs(t, err, core.ErrNoEvent)
}

func TestClaimRequiresActiveStake(t *testing.T) {
	f := newFixture(t, 10_000_000)

	_, err := f.gen.ClaimTemptation(testutil.NewContext(f.st, 0, "alice"))
	require.ErrorIs(t, err, core.ErrNoActiveStake)
}

func TestClaimWithEmptyPool(t *testing.T) {
	f := newFixture(t, 0)
	f.stake(t, "alice", 0)

	_, err := f.gen.ClaimTemptation(testutil.NewContext(f.st, 144, "alice"))
	require.ErrorIs(t, err, core.ErrInsufficientBalance)
}

func TestClaimUnauthorizedIdentity(t *testing.T) {
	st := testutil.NewStateDB()
	tr := streak.New()
	g := New(tr, pool.New([]string{core.ModuleAddress(core.ModuleVault)}))
	require.NoError(t, st.SetPosition(&core.StakePosition{Owner: "alice", LockedAmount: 1, Active: true}))

	_, err := g.ClaimTemptation(testutil.NewContext(st, 0, "alice"))
	require.ErrorIs(t, err, core.ErrUnauthorized)
}
