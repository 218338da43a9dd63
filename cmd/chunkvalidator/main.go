// Copyright 2025 Certen Protocol
//
// chunkvalidator runs a single chunk validation node. With a validator
// account id configured it registers as a chunk validator (replaying the
// witnesses it receives and sending endorsements back); without one it
// runs as an observer. A witness builder is constructed, but this
// entrypoint never drives it, so the node does not build or distribute
// witnesses itself. Wiring style follows main.go:
// flags + env config, a signal-driven shutdown, an HTTP server for
// metrics.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/chunkvalidator/internal/builder"
	"github.com/certen/chunkvalidator/internal/chainstore"
	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/config"
	"github.com/certen/chunkvalidator/internal/endorse"
	"github.com/certen/chunkvalidator/internal/epoch"
	"github.com/certen/chunkvalidator/internal/metrics"
	"github.com/certen/chunkvalidator/internal/network"
	"github.com/certen/chunkvalidator/internal/prevalidate"
	"github.com/certen/chunkvalidator/internal/replay"
	"github.com/certen/chunkvalidator/internal/runtime"
	"github.com/certen/chunkvalidator/internal/scheduler"
	"github.com/certen/chunkvalidator/internal/signer"
	"github.com/certen/chunkvalidator/pkg/crypto/bls"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "unused placeholder for a future file-based config; configuration is read from the environment")
	flag.Parse()

	logger := log.New(os.Stderr, "chunkvalidator: ", log.LstdFlags)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	db, err := dbm.NewGoLevelDB("state-transitions", cfg.StateTransitionDBPath)
	if err != nil {
		return fmt.Errorf("open state transition db: %w", err)
	}
	defer db.Close()
	_ = chainstore.NewStateTransitionStore(db) // wired into a ChainStore by production deployments; this demo node keeps history in memory

	chain := chainstore.NewInMemory()
	layout := chunktypes.ShardLayout{Version: 1, Boundaries: []string{"account3", "account5", "account7"}}
	validators := map[uint64][]string{0: {"validator0"}, 1: {"validator0"}, 2: {"validator0"}, 3: {"validator0"}}
	epochs := epoch.NewInMemory(layout, validators, "producer0")

	bus := network.NewInProcessBus()

	collectors := metrics.New()
	reg := prometheus.NewRegistry()
	if err := collectors.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	wb := builder.New(chain, epochs, bus)
	_ = wb

	var sched *scheduler.Scheduler
	if cfg.ValidatorAccountID != "" {
		km := bls.NewKeyManager(cfg.BLSKeyPath)
		if cfg.BLSKeyPath != "" {
			if err := km.LoadOrGenerateKey(); err != nil {
				return fmt.Errorf("load or generate validator signing key: %w", err)
			}
		} else {
			if err := km.GenerateFromSeed([]byte(cfg.BLSSeedHex + cfg.BLSSeedHex + cfg.BLSSeedHex + cfg.BLSSeedHex)); err != nil {
				return fmt.Errorf("derive validator signing key: %w", err)
			}
		}
		s := signer.NewBLSSigner(cfg.ValidatorAccountID, km.GetPrivateKey())
		pre := prevalidate.New(chain, epochs)
		rt := runtime.NewTransferRuntime()
		replayer := replay.New(rt, epochs)
		dispatcher := endorse.New(s, bus, logger)
		sched = scheduler.New(scheduler.Config{MaxWorkers: cfg.MaxReplayWorkers}, s, epochs, pre, replayer, dispatcher, collectors, logger)
		bus.RegisterChunkValidator(cfg.ValidatorAccountID, func(ctx context.Context, witness *chunktypes.ChunkStateWitness) error {
			return sched.ProcessWitness(ctx, witness)
		})
		defer sched.Stop()
		logger.Printf("running as chunk validator %s", cfg.ValidatorAccountID)
	} else {
		logger.Printf("running as an observer: no validator account id configured")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
