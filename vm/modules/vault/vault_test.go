package vault

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/internal/testutil"
	"github.com/tolelom/procrastichain/storage"
	"github.com/tolelom/procrastichain/vm/modules/pool"
	"github.com/tolelom/procrastichain/vm/modules/streak"
)

const day = core.TicksPerDay

type fixture struct {
	st      *storage.StateDB
	tracker *streak.Tracker
	pool    *pool.Pool
	vault   *Vault
}

func newFixture(t *testing.T, poolSeed uint64) *fixture {
	t.Helper()
	st := testutil.NewStateDB()
	tr := streak.New()
	p := pool.New([]string{core.ModuleAddress(core.ModuleVault)})
	if poolSeed > 0 {
		testutil.Fund(t, st, "seeder", poolSeed)
		require.NoError(t, p.Deposit(testutil.NewContext(st, 0, "seeder"), "seeder", poolSeed))
	}
	return &fixture{st: st, tracker: tr, pool: p, vault: New(tr, p)}
}

func (f *fixture) poolBalance(t *testing.T) uint64 {
	t.Helper()
	bal, err := f.pool.GetBalance(f.st)
	require.NoError(t, err)
	return bal
}

func TestBonusRateTiers(t *testing.T) {
	cases := map[int64]uint64{
		0: 0, 6: 0, 7: 100, 13: 100, 14: 250, 29: 250, 30: 500, 99: 500, 100: 1500, 1000: 1500,
	}
	for days, want := range cases {
		require.Equal(t, want, BonusRateBps(days), "days=%d", days)
	}
	require.Equal(t, uint64(10_000), TierBonus(1_000_000, 7))
	require.Equal(t, uint64(0), TierBonus(99, 7))
}

func TestTierBonusDoesNotOverflow(t *testing.T) {
	const max = ^uint64(0)
	require.Equal(t, max/10_000*1500+max%10_000*1500/10_000, TierBonus(max, 100))
}

func TestStartLocksFunds(t *testing.T) {
	f := newFixture(t, 0)
	testutil.Fund(t, f.st, "alice", 1_500_000)

	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 10, "alice"), 1_000_000))

	locked, err := f.vault.GetLockedAmount(f.st, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), locked)
	require.Equal(t, uint64(500_000), testutil.BalanceOf(t, f.st, "alice"))
	require.Equal(t, uint64(1_000_000), testutil.BalanceOf(t, f.st, f.vault.Address()))

	blocks, err := f.tracker.GetBlocks(f.st, "alice", 20)
	require.NoError(t, err)
	require.Equal(t, int64(10), blocks)
}

func TestStartRejections(t *testing.T) {
	f := newFixture(t, 0)
	testutil.Fund(t, f.st, "alice", 100)

	err := f.vault.StartProcrastinating(testutil.NewContext(f.st, 1, "alice"), 0)
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	err = f.vault.StartProcrastinating(testutil.NewContext(f.st, 1, "alice"), 101)
	require.ErrorIs(t, err, core.ErrTransferFailed)

	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 1, "alice"), 50))
	err = f.vault.StartProcrastinating(testutil.NewContext(f.st, 2, "alice"), 50)
	require.ErrorIs(t, err, core.ErrAlreadyActive)
}

func TestQuitSplitsStake(t *testing.T) {
	f := newFixture(t, 0)
	testutil.Fund(t, f.st, "alice", 1_000_000)
	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 5, "alice"), 1_000_000))

	res, err := f.vault.QuitProcrastinating(testutil.NewContext(f.st, 6, "alice"))
	require.NoError(t, err)
	require.Equal(t, QuitResult{Refund: 900_000, Penalty: 100_000}, res)
	require.Equal(t, uint64(100_000), f.poolBalance(t))
	require.Equal(t, uint64(900_000), testutil.BalanceOf(t, f.st, "alice"))
	require.Zero(t, testutil.BalanceOf(t, f.st, f.vault.Address()))

	pos, err := f.vault.GetPosition(f.st, "alice")
	require.NoError(t, err)
	require.False(t, pos.Active)
	require.Zero(t, pos.LockedAmount)

	s, err := f.tracker.Get(f.st, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(6), s.StartTick)
	require.Equal(t, uint64(1), s.ResetCount)
}

func TestQuitConservesValue(t *testing.T) {
	for _, locked := range []uint64{1, 9, 10, 99, 101, 12_345, 1_000_003} {
		f := newFixture(t, 0)
		testutil.Fund(t, f.st, "alice", locked)
		require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 0, "alice"), locked))

		res, err := f.vault.QuitProcrastinating(testutil.NewContext(f.st, 1, "alice"))
		require.NoError(t, err)
		require.Equal(t, locked*10/100, res.Penalty)
		require.Equal(t, locked, res.Refund+res.Penalty)
		require.Equal(t, res.Penalty, f.poolBalance(t))
	}
}

func TestQuitWithoutStake(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.vault.QuitProcrastinating(testutil.NewContext(f.st, 1, "alice"))
	require.ErrorIs(t, err, core.ErrNoActiveStake)
}

func TestRestakeInSameTickAfterQuit(t *testing.T) {
	f := newFixture(t, 0)
	testutil.Fund(t, f.st, "alice", 1000)
	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 1, "alice"), 1000))
	_, err := f.vault.QuitProcrastinating(testutil.NewContext(f.st, 2, "alice"))
	require.NoError(t, err)
	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 2, "alice"), 900))

	locked, err := f.vault.GetLockedAmount(f.st, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(900), locked)
}

func TestSevenDayBonusAndClaim(t *testing.T) {
	f := newFixture(t, 500_000)
	testutil.Fund(t, f.st, "alice", 1_000_000)
	const start = 40
	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, start, "alice"), 1_000_000))

	bonus, err := f.vault.GetCurrentBonus(f.st, "alice", start+7*day-1)
	require.NoError(t, err)
	require.Zero(t, bonus)

	bonus, err = f.vault.GetCurrentBonus(f.st, "alice", start+7*day)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), bonus)

	paid, err := f.vault.ClaimRewards(testutil.NewContext(f.st, start+7*day, "alice"))
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), paid)
	require.Equal(t, uint64(490_000), f.poolBalance(t))
	require.Equal(t, uint64(10_000), testutil.BalanceOf(t, f.st, "alice"))

	// Position and streak survive the claim.
	locked, err := f.vault.GetLockedAmount(f.st, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), locked)
	days, err := f.tracker.GetDays(f.st, "alice", start+7*day)
	require.NoError(t, err)
	require.Equal(t, int64(7), days)
}

func TestClaimPaysOnlyTheIncrement(t *testing.T) {
	f := newFixture(t, 500_000)
	testutil.Fund(t, f.st, "alice", 1_000_000)
	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 0, "alice"), 1_000_000))

	_, err := f.vault.ClaimRewards(testutil.NewContext(f.st, 7*day, "alice"))
	require.NoError(t, err)

	_, err = f.vault.ClaimRewards(testutil.NewContext(f.st, 8*day, "alice"))
	require.ErrorIs(t, err, core.ErrNoReward)

	bonus, err := f.vault.GetCurrentBonus(f.st, "alice", 14*day)
	require.NoError(t, err)
	require.Equal(t, uint64(15_000), bonus)

	paid, err := f.vault.ClaimRewards(testutil.NewContext(f.st, 14*day, "alice"))
	require.NoError(t, err)
	require.Equal(t, uint64(15_000), paid)
	require.Equal(t, uint64(25_000), testutil.BalanceOf(t, f.st, "alice"))
}

func TestStreakResetStartsNewRewardEpoch(t *testing.T) {
	f := newFixture(t, 500_000)
	testutil.Fund(t, f.st, "alice", 1_000_000)
	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 0, "alice"), 1_000_000))
	_, err := f.vault.ClaimRewards(testutil.NewContext(f.st, 7*day, "alice"))
	require.NoError(t, err)

	require.NoError(t, f.tracker.Reset(f.st, "alice", 7*day))

	bonus, err := f.vault.GetCurrentBonus(f.st, "alice", 14*day)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), bonus)
}

func TestClaimRewardsFailures(t *testing.T) {
	f := newFixture(t, 5_000)
	_, err := f.vault.ClaimRewards(testutil.NewContext(f.st, 1, "alice"))
	require.ErrorIs(t, err, core.ErrNoActiveStake)

	testutil.Fund(t, f.st, "alice", 1_000_000)
	require.NoError(t, f.vault.StartProcrastinating(testutil.NewContext(f.st, 0, "alice"), 1_000_000))

	_, err = f.vault.ClaimRewards(testutil.NewContext(f.st, day, "alice"))
	require.ErrorIs(t, err, core.ErrNoReward)

	_, err = f.vault.ClaimRewards(testutil.NewContext(f.st, 7*day, "alice"))
	require.ErrorIs(t, err, core.ErrInsufficientBalance)
}

func TestGetCurrentBonusWithoutStake(t *testing.T) {
	f := newFixture(t, 0)
	bonus, err := f.vault.GetCurrentBonus(f.st, "nobody", 10*day)
	require.NoError(t, err)
	require.Zero(t, bonus)
}
