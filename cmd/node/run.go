package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/tolelom/procrastichain/config"
	"github.com/tolelom/procrastichain/consensus"
	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/indexer"
	"github.com/tolelom/procrastichain/journal"
	"github.com/tolelom/procrastichain/protocol"
	"github.com/tolelom/procrastichain/rpc"
	"github.com/tolelom/procrastichain/storage"
	"github.com/tolelom/procrastichain/vm"
	"github.com/tolelom/procrastichain/wallet"
)

func runNode(parent context.Context, opts *rootOptions) error {
	cfg, log, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	privKey, err := wallet.LoadKey(opts.keyPath, password(log))
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewLevelBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}
	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesis); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.Info("genesis committed",
			zap.String("hash", genesis.Hash),
			zap.String("chain_id", cfg.Genesis.ChainID))
	}

	emitter := events.NewEmitter(log.Named("events"))
	idx, err := indexer.New(db, emitter, log)
	if err != nil {
		return fmt.Errorf("indexer: %w", err)
	}

	rec, err := openJournal(cfg, log)
	if err != nil {
		return err
	}
	defer rec.Close()
	journal.Attach(emitter, rec, log.Named("journal"))

	proto, err := protocol.New(cfg.Protocol)
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	exec := vm.NewExecutor(state, proto.NewRegistry(), emitter)
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey, log)

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	handler := rpc.NewHandler(bc, mempool, state.Committed(), idx, proto, cfg.Genesis.ChainID)
	server := rpc.NewServer(rpcAddr, handler, cfg.RPCAuthToken, log)
	if err := server.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer server.Stop() //nolint:errcheck

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Consensus stops before the deferred RPC shutdown and db close.
	if err := poa.Run(ctx); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func openJournal(cfg *config.Config, log *zap.Logger) (journal.Recorder, error) {
	if cfg.Journal.SQLitePath == "" {
		return journal.NewNoopRecorder(), nil
	}
	rec, err := journal.NewSQLiteRecorder(cfg.Journal.SQLitePath, log.Named("journal"))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return rec, nil
}
