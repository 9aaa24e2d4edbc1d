package vm

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
)

// Executor applies transactions to the state using a Handler registry.
type Executor struct {
	state    core.State
	registry *Registry
	emitter  *events.Emitter
}

// NewExecutor creates an Executor with the given state, handlers and event emitter.
func NewExecutor(state core.State, registry *Registry, emitter *events.Emitter) *Executor {
	return &Executor{state: state, registry: registry, emitter: emitter}
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// On failure every state change made by the transaction, including the fee
// and nonce, is reverted and the returned receipt carries the error code.
// Events go straight to the executor's emitter.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) (*core.Receipt, error) {
	var pub events.Publisher
	if e.emitter != nil {
		pub = e.emitter
	}
	return e.ExecuteTxTo(pub, block, tx)
}

// ExecuteTxTo is ExecuteTx with the transaction's events sent to pub instead
// of the emitter. A nil pub discards them.
func (e *Executor) ExecuteTxTo(pub events.Publisher, block *core.Block, tx *core.Transaction) (*core.Receipt, error) {
	receipt := &core.Receipt{
		TxID:        tx.ID,
		Type:        tx.Type,
		From:        tx.From,
		BlockHeight: block.Header.Height,
	}

	if err := tx.Verify(); err != nil {
		err = fmt.Errorf("signature: %w", err)
		e.fail(pub, receipt, err)
		return receipt, err
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	ctx := NewContext(e.state, block, tx)
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		e.fail(pub, receipt, err)
		return receipt, err
	}

	receipt.Status = core.ReceiptOK
	if res := ctx.Result(); res != nil {
		raw, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		receipt.Result = raw
	}

	if pub != nil {
		for _, ev := range ctx.Events() {
			pub.Emit(ev)
		}
		pub.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From, "receipt": receipt},
		})
	}
	return receipt, nil
}

func (e *Executor) fail(pub events.Publisher, receipt *core.Receipt, err error) {
	receipt.Status = core.ReceiptFailed
	receipt.Error = err.Error()
	if pe, ok := core.AsProtocolError(err); ok {
		receipt.Code = pe.Code
		receipt.Symbol = pe.Symbol
	}
	if pub != nil {
		pub.Emit(events.Event{
			Type:        events.EventTxFailed,
			TxID:        receipt.TxID,
			BlockHeight: receipt.BlockHeight,
			Data:        map[string]any{"type": string(receipt.Type), "from": receipt.From, "receipt": receipt},
		})
	}
}

// applyTx deducts the fee, increments the nonce, then dispatches to the handler.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("insufficient balance for fee: have %d need %d", acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	return e.registry.Execute(tx.Type, ctx, tx.Payload)
}
