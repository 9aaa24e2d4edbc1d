// Package streak tracks how long each principal has gone without giving in.
package streak

import (
	"errors"

	"github.com/tolelom/procrastichain/core"
)

// Tracker reads and writes per-principal streak state. It holds no state of
// its own; every call works against the State it is handed.
type Tracker struct{}

// New returns a Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Start begins a streak for principal at tick. Calling it again simply
// restarts the streak.
func (t *Tracker) Start(st core.State, principal string, tick int64) error {
	s, err := t.load(st, principal)
	if err != nil {
		return err
	}
	s.StartTick = tick
	return st.SetStreak(s)
}

// Reset zeroes the streak of principal at tick and counts the reset.
func (t *Tracker) Reset(st core.State, principal string, tick int64) error {
	s, err := t.load(st, principal)
	if err != nil {
		return err
	}
	s.StartTick = tick
	s.ResetCount++
	return st.SetStreak(s)
}

// GetBlocks returns the ticks elapsed since the streak began, or 0 if the
// principal never started one.
func (t *Tracker) GetBlocks(st core.State, principal string, tick int64) (int64, error) {
	s, err := st.GetStreak(principal)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if tick <= s.StartTick {
		return 0, nil
	}
	return tick - s.StartTick, nil
}

// GetDays returns the whole streak days of principal at tick.
func (t *Tracker) GetDays(st core.State, principal string, tick int64) (int64, error) {
	blocks, err := t.GetBlocks(st, principal, tick)
	if err != nil {
		return 0, err
	}
	return blocks / core.TicksPerDay, nil
}

// Get returns the raw streak state of principal.
func (t *Tracker) Get(st core.State, principal string) (*core.StreakState, error) {
	return st.GetStreak(principal)
}

func (t *Tracker) load(st core.State, principal string) (*core.StreakState, error) {
	s, err := st.GetStreak(principal)
	if errors.Is(err, core.ErrNotFound) {
		return &core.StreakState{Owner: principal}, nil
	}
	return s, err
}
