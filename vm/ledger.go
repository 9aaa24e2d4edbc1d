package vm

import (
	"fmt"
	"math"

	"github.com/tolelom/procrastichain/core"
)

// Transfer moves amount from one principal to another. It either applies both
// legs or neither: the sender is checked before anything is written.
func Transfer(st core.State, from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	sender, err := st.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", core.ErrTransferFailed, from, sender.Balance, amount)
	}
	recipient, err := st.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.Balance > math.MaxUint64-amount {
		return fmt.Errorf("%w: balance overflow for %s", core.ErrTransferFailed, to)
	}
	sender.Balance -= amount
	recipient.Balance += amount
	if err := st.SetAccount(sender); err != nil {
		return err
	}
	return st.SetAccount(recipient)
}

// Balance returns the free balance of address.
func Balance(st core.State, address string) (uint64, error) {
	acc, err := st.GetAccount(address)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}
