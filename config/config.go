package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/crypto"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID  string            `json:"chain_id" yaml:"chain_id"`
	Alloc    map[string]uint64 `json:"alloc" yaml:"alloc"`         // pubkey hex → initial balance
	PoolSeed uint64            `json:"pool_seed" yaml:"pool_seed"` // initial penalty pool reservoir
}

// ProtocolConfig tunes the protocol modules.
type ProtocolConfig struct {
	BadgeBaseURI        string `json:"badge_base_uri" yaml:"badge_base_uri"`
	LeaderboardCapacity int    `json:"leaderboard_capacity" yaml:"leaderboard_capacity"`
	// PoolAuthorized lists who may withdraw from the penalty pool: module
	// names ("vault", "temptation") or raw principal addresses.
	PoolAuthorized []string `json:"pool_authorized" yaml:"pool_authorized"`
}

// JournalConfig configures the SQLite protocol event journal. An empty path
// disables it.
type JournalConfig struct {
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
}

// LogConfig selects the log level ("debug", "info", ...) and encoding
// ("json" or "console").
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Config holds all node configuration.
type Config struct {
	NodeID        string         `json:"node_id" yaml:"node_id"`
	DataDir       string         `json:"data_dir" yaml:"data_dir"`
	RPCPort       int            `json:"rpc_port" yaml:"rpc_port"`
	RPCAuthToken  string         `json:"rpc_auth_token" yaml:"rpc_auth_token"` // empty → no auth
	MaxBlockTxs   int            `json:"max_block_txs" yaml:"max_block_txs"`   // max transactions per block; 0 → 500
	BlockSchedule string         `json:"block_schedule" yaml:"block_schedule"` // cron spec, e.g. "@every 2s"
	Validators    []string       `json:"validators" yaml:"validators"`         // authorised proposer pubkey hexes
	Genesis       GenesisConfig  `json:"genesis" yaml:"genesis"`
	Protocol      ProtocolConfig `json:"protocol" yaml:"protocol"`
	Journal       JournalConfig  `json:"journal" yaml:"journal"`
	Log           LogConfig      `json:"log" yaml:"log"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		RPCPort:       8545,
		MaxBlockTxs:   500,
		BlockSchedule: "@every 2s",
		Genesis: GenesisConfig{
			ChainID: "procrastichain-dev",
			Alloc:   map[string]uint64{},
		},
		Protocol: ProtocolConfig{
			BadgeBaseURI:        "https://procrastination.com/badges",
			LeaderboardCapacity: 100,
			PoolAuthorized:      []string{core.ModuleVault, core.ModuleTemptation},
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads a config file from path, JSON or YAML by extension, then
// applies environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnv(cfg)
	return cfg, nil
}

// ApplyEnv overrides fields from PROCRASTI_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("PROCRASTI_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PROCRASTI_RPC_TOKEN"); v != "" {
		cfg.RPCAuthToken = v
	}
	if v := os.Getenv("PROCRASTI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PROCRASTI_JOURNAL"); v != "" {
		cfg.Journal.SQLitePath = v
	}
}

// Validate checks that the configuration can start a node.
func (c *Config) Validate() error {
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id is required")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port %d out of range", c.RPCPort)
	}
	if c.MaxBlockTxs < 0 {
		return fmt.Errorf("max_block_txs must not be negative")
	}
	if _, err := cron.ParseStandard(c.BlockSchedule); err != nil {
		return fmt.Errorf("block_schedule %q: %w", c.BlockSchedule, err)
	}
	if c.Protocol.LeaderboardCapacity < 0 {
		return fmt.Errorf("protocol.leaderboard_capacity must not be negative")
	}
	for _, v := range c.Validators {
		if !crypto.IsPubKeyHex(v) {
			return fmt.Errorf("validator %q is not an ed25519 pubkey hex", v)
		}
	}
	return nil
}

// Save writes the config to path, as YAML or indented JSON by extension.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
