package config

import (
	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0 from the genesis config. It
// credits the Alloc accounts, seeds the penalty pool and commits state.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		acc := &core.Account{
			Address: pubkeyHex,
			Balance: balance,
			Nonce:   0,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	if seed := cfg.Genesis.PoolSeed; seed > 0 {
		poolAcc := &core.Account{Address: core.ModuleAddress(core.ModulePool), Balance: seed}
		if err := state.SetAccount(poolAcc); err != nil {
			return nil, err
		}
		if err := state.SetPool(&core.PoolState{Balance: seed}); err != nil {
			return nil, err
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	// The chain ID stands in for the (empty) tx root so genesis blocks of
	// different chains never share a hash.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return h == GenesisHash
}
