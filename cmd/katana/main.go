// Copyright 2025 The Katana Authors
// This file is part of Katana.
//
// Katana is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Katana is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Katana. If not, see <http://www.gnu.org/licenses/>.

// katana is the sequencer entry point: `katana` (or `katana node`)
// starts the node; the `db` subcommands operate on an offline database.
//
// Exit codes: 0 clean shutdown, 1 configuration error, 2 database
// error, 3 unrecoverable runtime error.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/classcache"
	"github.com/katana-sequencer/katana/internal/config"
	"github.com/katana-sequencer/katana/internal/executor"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/fork"
	"github.com/katana-sequencer/katana/internal/genesis"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/logging"
	"github.com/katana-sequencer/katana/internal/metrics"
	"github.com/katana-sequencer/katana/internal/pool"
	"github.com/katana-sequencer/katana/internal/producer"
	"github.com/katana-sequencer/katana/internal/provider"
	"github.com/katana-sequencer/katana/internal/syncstage"
	"github.com/katana-sequencer/katana/internal/trie"
)

const (
	exitConfig  = 1
	exitDB      = 2
	exitRuntime = 3
)

func main() {
	app := &cli.App{
		Name:  "katana",
		Usage: "Starknet-compatible sequencer",
		Flags: nodeFlags(),
		Action: func(c *cli.Context) error {
			return runNode(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "node",
				Usage:  "start the sequencer (same as the default action)",
				Flags:  nodeFlags(),
				Action: runNode,
			},
			{
				Name:  "db",
				Usage: "offline database maintenance",
				Subcommands: []*cli.Command{
					{
						Name:  "prune",
						Usage: "prune historical trie nodes older than the retention horizon",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "db-dir", EnvVars: []string{"KATANA_DB_DIR"}},
							&cli.Uint64Flag{Name: "keep", Usage: "blocks to retain", Required: true},
							&cli.BoolFlag{Name: "y", Usage: "skip confirmation"},
						},
						Action: runPrune,
					},
					{
						Name:  "version",
						Usage: "print the on-disk DB schema version",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "db-dir", EnvVars: []string{"KATANA_DB_DIR"}},
						},
						Action: runVersion,
					},
					{
						Name:  "migrate",
						Usage: "re-execute from checkpoints to upgrade the schema",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "db-dir", EnvVars: []string{"KATANA_DB_DIR"}},
						},
						Action: runMigrate,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntime)
	}
}

func nodeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "http.addr", Value: "127.0.0.1"},
		&cli.IntFlag{Name: "http.port", Value: 5050},
		&cli.StringSliceFlag{Name: "rpc.methods"},
		&cli.StringFlag{Name: "db-dir", EnvVars: []string{"KATANA_DB_DIR"}},
		&cli.StringFlag{Name: "chain", EnvVars: []string{"KATANA_CHAIN_ID"}},
		&cli.BoolFlag{Name: "dev"},
		&cli.Uint64Flag{Name: "block-time", Usage: "seconds between blocks (interval mining)"},
		&cli.BoolFlag{Name: "no-mining"},
		&cli.StringFlag{Name: "fork.url"},
		&cli.Uint64Flag{Name: "fork.block"},
		&cli.BoolFlag{Name: "disable-fee"},
		&cli.StringFlag{Name: "genesis"},
		&cli.StringFlag{Name: "seed", Value: "0"},
		&cli.IntFlag{Name: "accounts", Value: 10},
		&cli.IntFlag{Name: "metrics.port"},
		&cli.BoolFlag{Name: "explorer"},
	}
}

func configFromFlags(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	cfg.HTTPAddr = c.String("http.addr")
	cfg.HTTPPort = c.Int("http.port")
	cfg.RPCMethods = c.StringSlice("rpc.methods")
	cfg.DBDir = c.String("db-dir")
	cfg.Chain = c.String("chain")
	cfg.Dev = c.Bool("dev")
	cfg.BlockTime = time.Duration(c.Uint64("block-time")) * time.Second
	cfg.NoMining = c.Bool("no-mining")
	cfg.ForkURL = c.String("fork.url")
	cfg.ForkBlock = c.Uint64("fork.block")
	cfg.DisableFee = c.Bool("disable-fee")
	cfg.GenesisPath = c.String("genesis")
	cfg.Seed = c.String("seed")
	cfg.Accounts = c.Int("accounts")
	cfg.MetricsPort = c.Int("metrics.port")
	cfg.Explorer = c.Bool("explorer")
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, cli.Exit(err.Error(), exitConfig)
	}
	return cfg, nil
}

// openEnv opens the store: an in-memory environment in --dev mode with
// no --db-dir, the libmdbx one otherwise. Version mismatches are a
// configuration error (the user must run `db migrate`), everything else
// is a database error.
func openEnv(cfg config.Config) (kv.Env, error) {
	if cfg.DBDir == "" {
		if cfg.Dev {
			return kv.NewMem(kv.ChaindataTablesCfg), nil
		}
		return nil, cli.Exit("--db-dir is required outside --dev mode", exitConfig)
	}
	env, err := kv.OpenMdbx(cfg.DBDir, kv.ChaindataTablesCfg)
	if err != nil {
		if errors.Is(err, kv.ErrVersionMismatch) {
			return nil, cli.Exit(err.Error(), exitConfig)
		}
		return nil, cli.Exit(err.Error(), exitDB)
	}
	return env, nil
}

func runNode(c *cli.Context) error {
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Dev, cfg.LogLevel)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer log.Sync()

	env, err := openEnv(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	updater := trie.NewUpdater()
	store := provider.NewStore(env, updater)

	chainID := cfg.ChainID()
	_, accounts, err := genesis.Initialize(store, updater, genesis.Config{
		ChainID:          chainID,
		Seed:             cfg.Seed,
		Accounts:         cfg.Accounts,
		SequencerAddress: felt.FromUint64(0x5e9),
		StarknetVersion:  "0.13.4",
		Timestamp:        uint64(time.Now().Unix()),
		Path:             cfg.GenesisPath,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitDB)
	}
	for _, a := range accounts {
		log.Info("predeployed account", zap.String("address", a.Address.Hex()), zap.String("balance", a.Balance.Hex()))
	}

	classCache, err := classcache.NewBuilder().Build()
	if err != nil {
		return cli.Exit(err.Error(), exitRuntime)
	}
	defer classCache.Purge()

	reg := metrics.NewRegistry()
	nodeMetrics := metrics.NewNode()
	nodeMetrics.Register(reg)
	env.Metrics().Register(reg)

	views := func() (pool.StateView, func(), error) {
		rd, release, err := store.Reader()
		if err != nil {
			return nil, nil, err
		}
		return executor.ProviderState{P: rd, Cache: classCache}, release, nil
	}
	txPool := pool.New(pool.Config{ChainID: chainID, SizeGauge: nodeMetrics.PoolSize}, views)
	vm := executor.NewRefVM()

	mode := producer.ModeInstant
	switch {
	case cfg.NoMining:
		mode = producer.ModeManual
	case cfg.BlockTime > 0:
		mode = producer.ModeInterval
	}

	prodCfg := producer.Config{
		Mode:             mode,
		BlockTime:        cfg.BlockTime,
		ChainID:          chainID,
		SequencerAddress: felt.FromUint64(0x5e9),
		StarknetVersion:  "0.13.4",
		FeeDisabled:      cfg.DisableFee,
		L2GasPrice:       block.GasPrice{InWei: felt.One, InFri: felt.One},
		Metrics:          nodeMetrics,
		BaseState: func(p *provider.Provider) executor.BaseState {
			return executor.ProviderState{P: p, Cache: classCache}
		},
	}

	if cfg.ForkURL != "" {
		backend := fork.NewBackend(env, fork.NewClient(cfg.ForkURL, 0), cfg.ForkBlock)
		prodCfg.BaseState = func(p *provider.Provider) executor.BaseState {
			return fork.State{
				Local:   executor.ProviderState{P: p, Cache: classCache},
				Backend: backend,
				Ctx:     context.Background(),
			}
		}
		log.Info("forking remote chain", zap.String("url", cfg.ForkURL), zap.Uint64("block", cfg.ForkBlock))
	}

	prod := producer.New(prodCfg, store, txPool, vm, updater, log)

	if cfg.MetricsPort > 0 {
		go func() {
			addr := net.JoinHostPort(cfg.HTTPAddr, fmt.Sprint(cfg.MetricsPort))
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(reg))
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("sequencer started",
		zap.String("chain", chainID.Hex()),
		zap.String("mode", mode.String()),
		zap.String("http", net.JoinHostPort(cfg.HTTPAddr, fmt.Sprint(cfg.HTTPPort))))

	if err := prod.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(err.Error(), exitRuntime)
	}
	return nil
}

func runPrune(c *cli.Context) error {
	dir := c.String("db-dir")
	if dir == "" {
		return cli.Exit("--db-dir is required", exitConfig)
	}
	if !c.Bool("y") {
		fmt.Printf("prune trie history, keeping the latest %d blocks? [y/N] ", c.Uint64("keep"))
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			return nil
		}
	}
	env, err := kv.OpenMdbx(dir, kv.ChaindataTablesCfg)
	if err != nil {
		return cli.Exit(err.Error(), exitDB)
	}
	defer env.Close()

	res, err := trie.Prune(env, c.Uint64("keep"))
	if err != nil {
		return cli.Exit(err.Error(), exitDB)
	}
	fmt.Printf("pruned %d nodes, %d roots (horizon: block %d)\n", res.RemovedNodes, res.RemovedRoots, res.Horizon)
	return nil
}

func runVersion(c *cli.Context) error {
	dir := c.String("db-dir")
	if dir == "" {
		return cli.Exit("--db-dir is required", exitConfig)
	}
	env, err := kv.OpenMdbx(dir, kv.ChaindataTablesCfg)
	if err != nil {
		if errors.Is(err, kv.ErrVersionMismatch) {
			// Still print what we can: the mismatch message carries both
			// versions.
			fmt.Println(err.Error())
			return cli.Exit("", exitConfig)
		}
		return cli.Exit(err.Error(), exitDB)
	}
	defer env.Close()
	major, minor, patch := env.SchemaVersion()
	fmt.Printf("%d.%d.%d\n", major, minor, patch)
	return nil
}

func runMigrate(c *cli.Context) error {
	dir := c.String("db-dir")
	if dir == "" {
		return cli.Exit("--db-dir is required", exitConfig)
	}
	log, err := logging.New(false, "")
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	env, err := kv.OpenMdbx(dir, kv.ChaindataTablesCfg)
	if err != nil {
		return cli.Exit(err.Error(), exitDB)
	}
	defer env.Close()

	tx, err := env.BeginRo()
	if err != nil {
		return cli.Exit(err.Error(), exitDB)
	}
	headBytes, found, err := tx.Get(kv.DatabaseInfo, []byte("head"))
	tx.Rollback()
	if err != nil {
		return cli.Exit(err.Error(), exitDB)
	}
	if !found {
		fmt.Println("empty database, nothing to migrate")
		return nil
	}
	head := uint64(0)
	for _, b := range headBytes {
		head = head<<8 | uint64(b)
	}

	updater := trie.NewUpdater()
	pipeline := syncstage.NewPipeline(env, log, syncstage.Default(updater)...)
	if err := pipeline.Run(c.Context, head); err != nil {
		return cli.Exit(err.Error(), exitDB)
	}
	fmt.Printf("migrated through block %d\n", head)
	return nil
}
