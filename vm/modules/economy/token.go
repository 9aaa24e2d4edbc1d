// Package economy handles plain token transfers between principals.
package economy

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/vm"
)

// Register wires the transfer handler into r.
func Register(r *vm.Registry) {
	r.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("transfer: %w", core.ErrInvalidAmount)
	}
	if p.To == "" {
		return fmt.Errorf("transfer to address required")
	}

	if err := vm.Transfer(ctx.State, ctx.Caller(), p.To, p.Amount); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Caller(),
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}
