package wallet

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/procrastichain/core"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate("dev")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "validator.key")

	require.NoError(t, SaveKey(path, "hunter2", w.PrivKey()))
	priv, err := LoadKey(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, w.PubKey(), priv.Public().Hex())

	_, err = LoadKey(path, "wrong")
	require.ErrorIs(t, err, ErrWrongPassword)
}

func TestTxHelpersSignForChain(t *testing.T) {
	w, err := Generate("dev")
	require.NoError(t, err)

	tx, err := w.ClaimBadge(3, 7, 1)
	require.NoError(t, err)
	require.NoError(t, tx.Verify())
	require.Equal(t, "dev", tx.ChainID)
	require.Equal(t, core.TxClaimBadge, tx.Type)
	require.Equal(t, uint64(7), tx.Nonce)

	var p core.ClaimBadgePayload
	require.NoError(t, json.Unmarshal(tx.Payload, &p))
	require.Equal(t, uint64(3), p.BadgeID)

	tx, err = w.QuitProcrastinating(8, 0)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(tx.Payload))
}
