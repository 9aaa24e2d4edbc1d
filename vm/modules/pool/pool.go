// Package pool holds the penalty reservoir that funds streak rewards and
// temptation bonuses.
package pool

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/vm"
)

// Pool owns the reservoir balance. Its funds sit in the pool module account;
// only allow-listed identities may draw from it.
type Pool struct {
	address    string
	authorized map[string]bool
}

// New returns a Pool that lets the given caller identities withdraw.
func New(authorized []string) *Pool {
	p := &Pool{
		address:    core.ModuleAddress(core.ModulePool),
		authorized: make(map[string]bool, len(authorized)),
	}
	for _, id := range authorized {
		p.authorized[id] = true
	}
	return p
}

// Address is the account holding the pool funds.
func (p *Pool) Address() string { return p.address }

// IsAuthorized reports whether caller may withdraw.
func (p *Pool) IsAuthorized(caller string) bool {
	return p.authorized[caller]
}

// Register wires the pool transactions into r.
func (p *Pool) Register(r *vm.Registry) {
	r.Register(core.TxReceivePenalty, p.handleReceivePenalty)
	r.Register(core.TxRequestReward, p.handleRequestReward)
}

// Deposit moves amount from the from account into the pool. A zero amount
// does nothing.
func (p *Pool) Deposit(ctx *vm.Context, from string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	pool, err := ctx.State.GetPool()
	if err != nil {
		return err
	}
	if pool.Balance+amount < pool.Balance {
		return fmt.Errorf("pool deposit: balance overflow: %w", core.ErrInvalidAmount)
	}
	if err := vm.Transfer(ctx.State, from, p.address, amount); err != nil {
		return fmt.Errorf("pool deposit: %w", err)
	}
	pool.Balance += amount
	if err := ctx.State.SetPool(pool); err != nil {
		return err
	}
	ctx.Emit(events.EventPoolDeposit, map[string]any{
		"from":    from,
		"amount":  amount,
		"balance": pool.Balance,
	})
	return nil
}

// Withdraw pays amount to recipient on behalf of caller. The caller must be
// allow-listed and the reservoir must cover the full amount.
func (p *Pool) Withdraw(ctx *vm.Context, amount uint64, recipient, caller string) error {
	if !p.IsAuthorized(caller) {
		return fmt.Errorf("pool withdraw by %s: %w", caller, core.ErrUnauthorized)
	}
	if amount == 0 {
		return nil
	}
	pool, err := ctx.State.GetPool()
	if err != nil {
		return err
	}
	if amount > pool.Balance {
		return fmt.Errorf("pool withdraw %d, balance %d: %w", amount, pool.Balance, core.ErrInsufficientBalance)
	}
	if err := vm.Transfer(ctx.State, p.address, recipient, amount); err != nil {
		return fmt.Errorf("pool withdraw: %w", err)
	}
	pool.Balance -= amount
	if err := ctx.State.SetPool(pool); err != nil {
		return err
	}
	ctx.Emit(events.EventPoolWithdraw, map[string]any{
		"to":      recipient,
		"caller":  caller,
		"amount":  amount,
		"balance": pool.Balance,
	})
	return nil
}

// GetBalance returns the reservoir balance.
func (p *Pool) GetBalance(st core.State) (uint64, error) {
	pool, err := st.GetPool()
	if err != nil {
		return 0, err
	}
	return pool.Balance, nil
}

func (p *Pool) handleReceivePenalty(ctx *vm.Context, payload json.RawMessage) error {
	var req core.PenaltyPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode receive_penalty payload: %w", err)
	}
	if err := p.Deposit(ctx, ctx.Caller(), req.Amount); err != nil {
		return err
	}
	bal, err := p.GetBalance(ctx.State)
	if err != nil {
		return err
	}
	ctx.SetResult(map[string]any{"balance": bal})
	return nil
}

func (p *Pool) handleRequestReward(ctx *vm.Context, payload json.RawMessage) error {
	var req core.RewardRequestPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode request_reward payload: %w", err)
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = ctx.Caller()
	}
	return p.Withdraw(ctx, req.Amount, recipient, ctx.Caller())
}
