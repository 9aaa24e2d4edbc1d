// Command node runs a procrastichain validator node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tolelom/procrastichain/config"
	"github.com/tolelom/procrastichain/internal/logging"
)

// passwordEnv holds the keystore password. CLI flags leak via ps.
const passwordEnv = "PROCRASTI_PASSWORD"

type rootOptions struct {
	configPath string
	keyPath    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "procrastichain",
		Short: "Stake-and-wait node: lock tokens, do nothing, get paid",
		Long: `procrastichain runs a single-validator chain hosting the vault,
streak tracker, temptation generator, penalty pool, leaderboard and
achievement badges.

Running without a subcommand starts the node.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNode(cmd.Context(), opts)
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&opts.keyPath, "key", "validator.key", "path to keystore file")

	rootCmd.AddCommand(
		newGenKeyCmd(opts),
		newInitCmd(opts),
		newJournalCmd(opts),
	)
	return rootCmd
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config %s: %w", path, err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func password(log *zap.Logger) string {
	pw := os.Getenv(passwordEnv)
	if pw == "" {
		log.Warn(passwordEnv + " not set, keystore uses an empty password")
	}
	return pw
}
