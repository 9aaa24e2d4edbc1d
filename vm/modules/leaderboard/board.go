// Package leaderboard keeps the public table of streak lengths. Rows stay in
// the order principals first posted them; sorting is left to readers.
package leaderboard

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/vm"
	"github.com/tolelom/procrastichain/vm/modules/streak"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 100

// Board updates rows from the streak tracker.
type Board struct {
	tracker  *streak.Tracker
	capacity int
}

// New returns a Board holding at most capacity rows; capacity <= 0 selects
// DefaultCapacity.
func New(tracker *streak.Tracker, capacity int) *Board {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Board{tracker: tracker, capacity: capacity}
}

// Capacity is the maximum number of rows.
func (b *Board) Capacity() int { return b.capacity }

// Register wires the update transaction into r.
func (b *Board) Register(r *vm.Registry) {
	r.Register(core.TxUpdateMyPosition, b.handleUpdate)
}

// UpdateMyPosition posts the caller's current streak. An existing row is
// overwritten in place; otherwise a row is appended.
func (b *Board) UpdateMyPosition(ctx *vm.Context) ([]core.LeaderboardEntry, error) {
	caller := ctx.Caller()
	blocks, err := b.tracker.GetBlocks(ctx.State, caller, ctx.Tick())
	if err != nil {
		return nil, err
	}
	entries, err := ctx.State.GetLeaderboard()
	if err != nil {
		return nil, err
	}

	idx := indexOf(entries, caller)
	if idx < 0 {
		if len(entries) >= b.capacity {
			return nil, fmt.Errorf("leaderboard holds %d rows: %w", len(entries), core.ErrLeaderboardFull)
		}
		entries = append(entries, core.LeaderboardEntry{User: caller, Blocks: blocks})
		idx = len(entries) - 1
	} else {
		entries[idx].Blocks = blocks
	}
	if err := ctx.State.SetLeaderboard(entries); err != nil {
		return nil, err
	}
	ctx.Emit(events.EventLeaderboardUpdate, map[string]any{
		"user":     caller,
		"blocks":   blocks,
		"position": idx,
	})
	return entries, nil
}

// GetLeaderboard returns the rows in insertion order.
func (b *Board) GetLeaderboard(st core.State) ([]core.LeaderboardEntry, error) {
	return st.GetLeaderboard()
}

func indexOf(entries []core.LeaderboardEntry, user string) int {
	for i, e := range entries {
		if e.User == user {
			return i
		}
	}
	return -1
}

func (b *Board) handleUpdate(ctx *vm.Context, _ json.RawMessage) error {
	entries, err := b.UpdateMyPosition(ctx)
	if err != nil {
		return err
	}
	ctx.SetResult(entries)
	return nil
}
