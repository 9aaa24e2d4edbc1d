// Package temptation schedules the recurring bonus events that tempt a
// procrastinator into breaking their streak.
//
// The schedule is a pure function of the tick: every 144-tick day has a
// "Midnight Snack" at remainder 0 and a "Noon Nap" at remainder 72.
package temptation

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/vm"
	"github.com/tolelom/procrastichain/vm/modules/pool"
	"github.com/tolelom/procrastichain/vm/modules/streak"
)

const (
	midnightRemainder = 0
	noonRemainder     = core.TicksPerDay / 2
)

// Temptation describes the event active at a tick.
type Temptation struct {
	Name     string `json:"name"`
	Bonus    uint64 `json:"bonus"`
	WindowID int64  `json:"window_id"`
}

var (
	midnightSnack = Temptation{Name: "Midnight Snack", Bonus: 1_000_000}
	noonNap       = Temptation{Name: "Noon Nap", Bonus: 5_000_000}
)

// Current returns the temptation active at tick, or NO_EVENT.
func Current(tick int64) (Temptation, error) {
	var t Temptation
	switch tick % core.TicksPerDay {
	case midnightRemainder:
		t = midnightSnack
	case noonRemainder:
		t = noonNap
	default:
		return Temptation{}, fmt.Errorf("tick %d: %w", tick, core.ErrNoEvent)
	}
	t.WindowID = WindowID(tick)
	return t, nil
}

// WindowID numbers event occurrences: two per day, midnight first.
func WindowID(tick int64) int64 {
	id := (tick / core.TicksPerDay) * 2
	if tick%core.TicksPerDay != 0 {
		id++
	}
	return id
}

// Generator pays temptation bonuses out of the pool under its own identity.
type Generator struct {
	tracker  *streak.Tracker
	pool     *pool.Pool
	identity string
}

// New returns a Generator resetting streaks through tracker and paying from p.
func New(tracker *streak.Tracker, p *pool.Pool) *Generator {
	return &Generator{
		tracker:  tracker,
		pool:     p,
		identity: core.ModuleAddress(core.ModuleTemptation),
	}
}

// Identity is the principal the generator withdraws from the pool as.
func (g *Generator) Identity() string { return g.identity }

// Register wires the claim transaction into r.
func (g *Generator) Register(r *vm.Registry) {
	r.Register(core.TxClaimTemptation, g.handleClaim)
}

// GetCurrentTemptation returns the temptation active at tick, or NO_EVENT.
func (g *Generator) GetCurrentTemptation(tick int64) (Temptation, error) {
	return Current(tick)
}

// HasClaimed reports whether principal already claimed windowID.
func (g *Generator) HasClaimed(st core.State, principal string, windowID int64) (bool, error) {
	return st.HasTemptationClaim(principal, windowID)
}

// ClaimTemptation gives in to the current temptation: the caller's streak is
// reset and the bonus is paid from the pool. Each window pays a principal
// at most once.
func (g *Generator) ClaimTemptation(ctx *vm.Context) (Temptation, error) {
	caller, tick := ctx.Caller(), ctx.Tick()

	t, err := Current(tick)
	if err != nil {
		return Temptation{}, err
	}
	claimed, err := ctx.State.HasTemptationClaim(caller, t.WindowID)
	if err != nil {
		return Temptation{}, err
	}
	if claimed {
		return Temptation{}, fmt.Errorf("window %d: %w", t.WindowID, core.ErrAlreadyClaimed)
	}
	pos, err := ctx.State.GetPosition(caller)
	if err != nil {
		return Temptation{}, err
	}
	if !pos.Active {
		return Temptation{}, fmt.Errorf("claim temptation: %w", core.ErrNoActiveStake)
	}

	if err := ctx.State.SetTemptationClaim(&core.TemptationClaim{
		Owner:    caller,
		WindowID: t.WindowID,
		Tick:     tick,
		Bonus:    t.Bonus,
	}); err != nil {
		return Temptation{}, err
	}
	if err := g.tracker.Reset(ctx.State, caller, tick); err != nil {
		return Temptation{}, err
	}
	ctx.Emit(events.EventStreakReset, map[string]any{"user": caller, "reason": "temptation"})
	if err := g.pool.Withdraw(ctx, t.Bonus, caller, g.identity); err != nil {
		return Temptation{}, err
	}

	ctx.Emit(events.EventTemptationClaimed, map[string]any{
		"user":      caller,
		"name":      t.Name,
		"bonus":     t.Bonus,
		"window_id": t.WindowID,
	})
	return t, nil
}

func (g *Generator) handleClaim(ctx *vm.Context, _ json.RawMessage) error {
	t, err := g.ClaimTemptation(ctx)
	if err != nil {
		return err
	}
	ctx.SetResult(t)
	return nil
}
