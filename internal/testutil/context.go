package testutil

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/crypto"
	"github.com/tolelom/procrastichain/vm"
)

// NewContext returns a vm.Context for a transaction from caller executing in
// a block at height tick.
func NewContext(st core.State, tick int64, caller string) *vm.Context {
	block := core.NewBlock(tick, "", "", nil)
	tx := &core.Transaction{
		ID:      fmt.Sprintf("test-%s-%d", caller, tick),
		Type:    core.TxType("test"),
		From:    caller,
		Payload: json.RawMessage(`{}`),
	}
	return vm.NewContext(st, block, tx)
}

// Fund credits amount to address in st.
func Fund(t testing.TB, st core.State, address string, amount uint64) {
	t.Helper()
	acc, err := st.GetAccount(address)
	require.NoError(t, err)
	acc.Balance += amount
	require.NoError(t, st.SetAccount(acc))
}

// BalanceOf returns the balance of address in st.
func BalanceOf(t testing.TB, st core.State, address string) uint64 {
	t.Helper()
	acc, err := st.GetAccount(address)
	require.NoError(t, err)
	return acc.Balance
}

// NewKey generates a key pair and returns the private key and its principal.
func NewKey(t testing.TB) (crypto.PrivateKey, string) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return priv, pub.Hex()
}
