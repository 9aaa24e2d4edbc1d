package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tolelom/procrastichain/config"
	"github.com/tolelom/procrastichain/journal"
	"github.com/tolelom/procrastichain/wallet"
)

func newGenKeyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a validator key and write it to the keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(opts.keyPath); err == nil {
				return fmt.Errorf("keystore %s already exists", opts.keyPath)
			}
			w, err := wallet.Generate(cfg.Genesis.ChainID)
			if err != nil {
				return err
			}
			if err := wallet.SaveKey(opts.keyPath, password(log), w.PrivKey()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Public key (validator address): %s\nSaved to: %s\n", w.PubKey(), opts.keyPath)
			return nil
		},
	}
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.configPath)
			}
			cfg := config.DefaultConfig()
			if priv, err := wallet.LoadKey(opts.keyPath, os.Getenv(passwordEnv)); err == nil {
				cfg.Validators = []string{priv.Public().Hex()}
			} else if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load key: %w", err)
			}
			if err := config.Save(cfg, opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", opts.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newJournalCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the most recent protocol events from the SQLite journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Journal.SQLitePath == "" {
				return errors.New("journal.sqlite_path is not configured")
			}
			rec, err := journal.NewSQLiteRecorder(cfg.Journal.SQLitePath, log)
			if err != nil {
				return err
			}
			defer rec.Close()

			entries, err := rec.Recent(limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			log.Debug("journal read", zap.Int("entries", len(entries)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to print")
	return cmd
}
