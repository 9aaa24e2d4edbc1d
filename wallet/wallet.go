// Package wallet provides key management and helpers that build signed
// protocol transactions.
package wallet

import (
	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/crypto"
)

// Wallet holds a key pair and the chain it signs for.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
	chainID string
}

// New creates a Wallet from an existing private key, signing for chainID.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key. It is the principal
// identity used as "from" and as the owner of positions, streaks and badges.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx creates a signed transaction. nonce should match the account's
// current nonce.
func (w *Wallet) NewTx(typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, fee, core.TransferPayload{To: to, Amount: amount})
}

// StartProcrastinating locks amount and starts a streak.
func (w *Wallet) StartProcrastinating(amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxStartProcrastinating, nonce, fee, core.StakePayload{Amount: amount})
}

// QuitProcrastinating gives up the stake, paying the exit penalty.
func (w *Wallet) QuitProcrastinating(nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxQuitProcrastinating, nonce, fee, nil)
}

// ClaimRewards collects the streak bonus earned so far.
func (w *Wallet) ClaimRewards(nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimRewards, nonce, fee, nil)
}

// Donate deposits amount into the penalty pool.
func (w *Wallet) Donate(amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxReceivePenalty, nonce, fee, core.PenaltyPayload{Amount: amount})
}

// ClaimTemptation gives in to the active temptation.
func (w *Wallet) ClaimTemptation(nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimTemptation, nonce, fee, nil)
}

// UpdateMyPosition posts the current streak to the leaderboard.
func (w *Wallet) UpdateMyPosition(nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxUpdateMyPosition, nonce, fee, nil)
}

// ClaimBadge mints badgeID if the streak is long enough.
func (w *Wallet) ClaimBadge(badgeID, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimBadge, nonce, fee, core.ClaimBadgePayload{BadgeID: badgeID})
}
