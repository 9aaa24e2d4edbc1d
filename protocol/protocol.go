// Package protocol assembles the procrastination game modules and wires
// them into a transaction registry.
package protocol

import (
	"fmt"

	"github.com/tolelom/procrastichain/config"
	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/crypto"
	"github.com/tolelom/procrastichain/vm"
	"github.com/tolelom/procrastichain/vm/modules/achievement"
	"github.com/tolelom/procrastichain/vm/modules/economy"
	"github.com/tolelom/procrastichain/vm/modules/leaderboard"
	"github.com/tolelom/procrastichain/vm/modules/pool"
	"github.com/tolelom/procrastichain/vm/modules/streak"
	"github.com/tolelom/procrastichain/vm/modules/temptation"
	"github.com/tolelom/procrastichain/vm/modules/vault"
)

// Protocol holds one instance of every module. Modules share the streak
// tracker and the pool by reference.
type Protocol struct {
	Streak       *streak.Tracker
	Pool         *pool.Pool
	Vault        *vault.Vault
	Temptation   *temptation.Generator
	Leaderboard  *leaderboard.Board
	Achievements *achievement.Registry
}

// New builds the modules from cfg. Pool withdrawal rights are resolved here,
// once, from cfg.PoolAuthorized.
func New(cfg config.ProtocolConfig) (*Protocol, error) {
	authorized := make([]string, 0, len(cfg.PoolAuthorized))
	for _, id := range cfg.PoolAuthorized {
		addr, err := ResolveIdentity(id)
		if err != nil {
			return nil, err
		}
		authorized = append(authorized, addr)
	}

	tracker := streak.New()
	p := pool.New(authorized)
	return &Protocol{
		Streak:       tracker,
		Pool:         p,
		Vault:        vault.New(tracker, p),
		Temptation:   temptation.New(tracker, p),
		Leaderboard:  leaderboard.New(tracker, cfg.LeaderboardCapacity),
		Achievements: achievement.New(tracker, cfg.BadgeBaseURI),
	}, nil
}

// ResolveIdentity maps a module name to its account address. Any other
// value must already be a principal address.
func ResolveIdentity(id string) (string, error) {
	switch id {
	case core.ModuleVault, core.ModuleTemptation, core.ModulePool:
		return core.ModuleAddress(id), nil
	}
	if !crypto.IsPubKeyHex(id) {
		return "", fmt.Errorf("pool authorization %q: not a module name or pubkey hex", id)
	}
	return id, nil
}

// Register wires every transaction type, including plain transfers, into r.
func (p *Protocol) Register(r *vm.Registry) {
	economy.Register(r)
	p.Pool.Register(r)
	p.Vault.Register(r)
	p.Temptation.Register(r)
	p.Leaderboard.Register(r)
	p.Achievements.Register(r)
}

// NewRegistry returns a registry with the protocol already registered.
func (p *Protocol) NewRegistry() *vm.Registry {
	r := vm.NewRegistry()
	p.Register(r)
	return r
}
