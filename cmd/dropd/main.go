package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"merkledrop/config"
	"merkledrop/core"
	"merkledrop/indexer"
	"merkledrop/observability/logging"
	telemetry "merkledrop/observability/otel"
	"merkledrop/rpc"
	"merkledrop/storage"
)

const serviceName = "dropd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "dropd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	accounts, err := cfg.Accounts()
	if err != nil {
		return err
	}

	logger := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{
		Level: cfg.Logging.Level,
		File: logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		},
	})

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err.Error())
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db, nodeOptions(cfg, accounts, logger))
	if err != nil {
		return fmt.Errorf("start ledger: %w", err)
	}
	node.Subscribe(core.LogSubscriber{Logger: logger})
	node.Subscribe(core.MetricsSubscriber{})

	server, closeIndexer, err := newServer(cfg, node, logger)
	if err != nil {
		return err
	}
	defer closeIndexer()

	logger.Info("ledger ready",
		"governor", accounts.Governor.Hex(),
		"token", accounts.ClaimableToken.Hex(),
		"trancheVault", node.TrancheVault().Hex(),
		"campaignVault", node.CampaignVault().Hex())

	if err := server.Serve(ctx, cfg.RPC.Address); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func nodeOptions(cfg *config.Config, accounts *config.Accounts, logger *slog.Logger) core.Options {
	genesis := make([]core.GenesisBalance, len(accounts.Genesis))
	for i, entry := range accounts.Genesis {
		genesis[i] = core.GenesisBalance{Token: entry.Token, Owner: entry.Owner, Amount: entry.Amount}
	}
	return core.Options{
		Governor:        accounts.Governor,
		ClaimableToken:  accounts.ClaimableToken,
		SuperAdmin:      accounts.SuperAdmin,
		Admins:          accounts.Admins,
		TrancheLifespan: cfg.TrancheLifespan,
		Genesis:         genesis,
		Logger:          logger,
	}
}

// newServer wires the RPC server and, when enabled, the SQL event indexer.
func newServer(cfg *config.Config, node *core.Node, logger *slog.Logger) (*rpc.Server, func(), error) {
	rpcCfg := rpc.Config{
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		EnvelopeTTL:       cfg.RPC.EnvelopeTTL,
		Logger:            logger,
	}
	if !cfg.Indexer.Enabled {
		return rpc.NewServer(node, nil, rpcCfg), func() {}, nil
	}
	db, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
	if err != nil {
		return nil, nil, err
	}
	store, err := indexer.NewStore(db, logger)
	if err != nil {
		return nil, nil, err
	}
	node.Subscribe(store)
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("close indexer", "error", err.Error())
		}
	}
	return rpc.NewServer(node, store, rpcCfg), closeFn, nil
}
