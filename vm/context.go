package vm

import (
	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
)

// Context is passed to every Handler and provides access to the chain state,
// the current block, the triggering transaction, and the event buffer.
type Context struct {
	State core.State
	Block *core.Block
	Tx    *core.Transaction

	pending []events.Event
	result  any
}

// NewContext builds a Context for executing tx inside block.
func NewContext(state core.State, block *core.Block, tx *core.Transaction) *Context {
	return &Context{State: state, Block: block, Tx: tx}
}

// Caller is the principal that signed the transaction.
func (c *Context) Caller() string {
	return c.Tx.From
}

// Tick is the current ledger tick.
func (c *Context) Tick() int64 {
	return c.Block.Tick()
}

// Emit queues an event. Queued events are published only if the whole
// transaction succeeds.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.pending = append(c.pending, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

// Events returns the events queued so far.
func (c *Context) Events() []events.Event {
	return c.pending
}

// SetResult records the success payload returned to the caller.
func (c *Context) SetResult(v any) {
	c.result = v
}

// Result returns the payload set by the handler, or nil.
func (c *Context) Result() any {
	return c.result
}
