// Package vault holds staked balances in custody and pays streak rewards.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/vm"
	"github.com/tolelom/procrastichain/vm/modules/pool"
	"github.com/tolelom/procrastichain/vm/modules/streak"
)

// PenaltyPercent of the locked amount goes to the pool on early exit.
const PenaltyPercent = 10

const bpsDenominator = 10_000

// tier maps a minimum streak length in days to a bonus rate.
type tier struct {
	days int64
	bps  uint64
}

// tiers must stay sorted by days, highest first.
var tiers = []tier{
	{days: 100, bps: 1500},
	{days: 30, bps: 500},
	{days: 14, bps: 250},
	{days: 7, bps: 100},
}

// BonusRateBps returns the reward rate, in basis points of the locked
// amount, earned by a streak of days.
func BonusRateBps(days int64) uint64 {
	for _, t := range tiers {
		if days >= t.days {
			return t.bps
		}
	}
	return 0
}

// TierBonus returns the bonus a streak of days earns on locked.
func TierBonus(locked uint64, days int64) uint64 {
	return mulDiv(locked, BonusRateBps(days), bpsDenominator)
}

// mulDiv returns floor(a*b/d) without intermediate overflow. b must not
// exceed d.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, d)
	return q
}

// QuitResult is the split of a position closed by QuitProcrastinating.
type QuitResult struct {
	Refund  uint64 `json:"refund"`
	Penalty uint64 `json:"penalty"`
}

// Vault keeps staked funds in the vault module account.
type Vault struct {
	tracker *streak.Tracker
	pool    *pool.Pool
	address string
}

// New returns a Vault starting streaks through tracker and settling with p.
func New(tracker *streak.Tracker, p *pool.Pool) *Vault {
	return &Vault{
		tracker: tracker,
		pool:    p,
		address: core.ModuleAddress(core.ModuleVault),
	}
}

// Address is the custody account and the identity the vault withdraws as.
func (v *Vault) Address() string { return v.address }

// Register wires the vault transactions into r.
func (v *Vault) Register(r *vm.Registry) {
	r.Register(core.TxStartProcrastinating, v.handleStart)
	r.Register(core.TxQuitProcrastinating, v.handleQuit)
	r.Register(core.TxClaimRewards, v.handleClaim)
}

// StartProcrastinating locks amount from the caller and starts their streak.
func (v *Vault) StartProcrastinating(ctx *vm.Context, amount uint64) error {
	caller, tick := ctx.Caller(), ctx.Tick()

	pos, err := ctx.State.GetPosition(caller)
	if err != nil {
		return err
	}
	if pos.Active {
		return fmt.Errorf("start procrastinating: %w", core.ErrAlreadyActive)
	}
	if amount == 0 {
		return fmt.Errorf("start procrastinating: %w", core.ErrInvalidAmount)
	}
	if err := vm.Transfer(ctx.State, caller, v.address, amount); err != nil {
		return fmt.Errorf("lock stake: %w", err)
	}

	if err := ctx.State.SetPosition(&core.StakePosition{
		Owner:        caller,
		LockedAmount: amount,
		Active:       true,
		RewardEpoch:  tick,
	}); err != nil {
		return err
	}
	if err := v.tracker.Start(ctx.State, caller, tick); err != nil {
		return err
	}
	ctx.Emit(events.EventStakeStarted, map[string]any{"user": caller, "amount": amount})
	return nil
}

// QuitProcrastinating closes the caller's position: the refund goes back to
// the caller, the penalty to the pool, and the streak restarts.
func (v *Vault) QuitProcrastinating(ctx *vm.Context) (QuitResult, error) {
	caller, tick := ctx.Caller(), ctx.Tick()

	pos, err := ctx.State.GetPosition(caller)
	if err != nil {
		return QuitResult{}, err
	}
	if !pos.Active {
		return QuitResult{}, fmt.Errorf("quit procrastinating: %w", core.ErrNoActiveStake)
	}

	penalty := mulDiv(pos.LockedAmount, PenaltyPercent, 100)
	res := QuitResult{Refund: pos.LockedAmount - penalty, Penalty: penalty}

	if err := vm.Transfer(ctx.State, v.address, caller, res.Refund); err != nil {
		return QuitResult{}, fmt.Errorf("refund stake: %w", err)
	}
	if err := v.pool.Deposit(ctx, v.address, res.Penalty); err != nil {
		return QuitResult{}, err
	}

	// Both legs are recorded; only now clear the position.
	pos.LockedAmount = 0
	pos.Active = false
	pos.RewardsPaid = 0
	if err := ctx.State.SetPosition(pos); err != nil {
		return QuitResult{}, err
	}
	if err := v.tracker.Reset(ctx.State, caller, tick); err != nil {
		return QuitResult{}, err
	}
	ctx.Emit(events.EventStreakReset, map[string]any{"user": caller, "reason": "quit"})
	ctx.Emit(events.EventStakeQuit, map[string]any{
		"user":    caller,
		"refund":  res.Refund,
		"penalty": res.Penalty,
	})
	return res, nil
}

// ClaimRewards pays the caller the part of their current tier bonus not yet
// paid for this streak. The position and streak stay as they are.
func (v *Vault) ClaimRewards(ctx *vm.Context) (uint64, error) {
	caller, tick := ctx.Caller(), ctx.Tick()

	pos, err := ctx.State.GetPosition(caller)
	if err != nil {
		return 0, err
	}
	if !pos.Active {
		return 0, fmt.Errorf("claim rewards: %w", core.ErrNoActiveStake)
	}
	epoch, bonus, err := v.tierBonus(ctx.State, pos, tick)
	if err != nil {
		return 0, err
	}
	amount := claimable(pos, epoch, bonus)
	if amount == 0 {
		return 0, fmt.Errorf("claim rewards: %w", core.ErrNoReward)
	}
	if err := v.pool.Withdraw(ctx, amount, caller, v.address); err != nil {
		return 0, err
	}

	pos.RewardEpoch = epoch
	pos.RewardsPaid = bonus
	if err := ctx.State.SetPosition(pos); err != nil {
		return 0, err
	}
	ctx.Emit(events.EventRewardClaimed, map[string]any{"user": caller, "amount": amount})
	return amount, nil
}

// GetLockedAmount returns what principal currently has in custody.
func (v *Vault) GetLockedAmount(st core.State, principal string) (uint64, error) {
	pos, err := st.GetPosition(principal)
	if err != nil {
		return 0, err
	}
	return pos.LockedAmount, nil
}

// GetPosition returns the stake position of principal.
func (v *Vault) GetPosition(st core.State, principal string) (*core.StakePosition, error) {
	return st.GetPosition(principal)
}

// GetCurrentBonus returns what ClaimRewards would pay principal at tick.
func (v *Vault) GetCurrentBonus(st core.State, principal string, tick int64) (uint64, error) {
	pos, err := st.GetPosition(principal)
	if err != nil {
		return 0, err
	}
	if !pos.Active {
		return 0, nil
	}
	epoch, bonus, err := v.tierBonus(st, pos, tick)
	if err != nil {
		return 0, err
	}
	return claimable(pos, epoch, bonus), nil
}

// tierBonus returns the current streak epoch and the full tier bonus for it.
func (v *Vault) tierBonus(st core.State, pos *core.StakePosition, tick int64) (int64, uint64, error) {
	s, err := v.tracker.Get(st, pos.Owner)
	if errors.Is(err, core.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	days, err := v.tracker.GetDays(st, pos.Owner, tick)
	if err != nil {
		return 0, 0, err
	}
	return s.StartTick, TierBonus(pos.LockedAmount, days), nil
}

// claimable subtracts what was already paid in the same streak epoch.
func claimable(pos *core.StakePosition, epoch int64, bonus uint64) uint64 {
	if pos.RewardEpoch != epoch {
		return bonus
	}
	if bonus <= pos.RewardsPaid {
		return 0
	}
	return bonus - pos.RewardsPaid
}

func (v *Vault) handleStart(ctx *vm.Context, payload json.RawMessage) error {
	var p core.StakePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode start_procrastinating payload: %w", err)
	}
	if err := v.StartProcrastinating(ctx, p.Amount); err != nil {
		return err
	}
	ctx.SetResult(map[string]any{"locked_amount": p.Amount})
	return nil
}

func (v *Vault) handleQuit(ctx *vm.Context, _ json.RawMessage) error {
	res, err := v.QuitProcrastinating(ctx)
	if err != nil {
		return err
	}
	ctx.SetResult(res)
	return nil
}

func (v *Vault) handleClaim(ctx *vm.Context, _ json.RawMessage) error {
	amount, err := v.ClaimRewards(ctx)
	if err != nil {
		return err
	}
	ctx.SetResult(map[string]any{"amount": amount})
	return nil
}
