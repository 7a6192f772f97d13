package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lendingScope/internal/chain"
	"lendingScope/internal/config"
	"lendingScope/internal/indexer"
	"lendingScope/internal/lending"
	"lendingScope/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Money-market lending indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("network", "mainnet", "network of the deployment (mainnet, bsc, arbitrum, ...)")
	root.PersistentFlags().String("protocol", "compound-v2", "deployment slug")
	root.PersistentFlags().String("deployments", "", "optional YAML file with extra deployment descriptors")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the comptroller and its markets for logs",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "RPC URL")
	runCmd.Flags().String("comptroller", "", "comptroller address, overrides the deployment")
	runCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	runCmd.Flags().StringSlice("market", nil, "extra market addresses to scan from the start (comma-separated)")
	runCmd.Flags().StringSlice("topic0", nil, "topic0 filter (comma-separated), defaults to every decodable event")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	runCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Bool("seed-markets", false, "read getAllMarkets before the start block when no market is known")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed events with their contract reads",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "RPC URL (archive node for historical reads)")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().Bool("skip-calls", false, "decode payloads only, without contract reads")

	root.AddCommand(decodeCmd)

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Apply typed events to the lending ledger and persist entities",
		RunE:  runProcess,
	}

	processCmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	processCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	processCmd.Flags().Int("batch-size", 1000, "rows per Postgres batch")
	processCmd.Flags().String("state-file", "", "optional local state file instead of the indexer_state table")
	processCmd.Flags().String("state-name", "", "indexer_state row name (default process:<network>:<protocol>)")
	processCmd.Flags().Int("flush-blocks", 100, "blocks applied between entity flushes")

	root.AddCommand(processCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	deployment, err := cfg.Deployment(logger)
	if err != nil {
		return err
	}
	comptrollerHex := cfg.Comptroller
	if comptrollerHex == "" {
		comptrollerHex = deployment.Comptroller
	}
	if comptrollerHex == "" {
		return fmt.Errorf("comptroller address is required for %s/%s", cfg.Network, cfg.Protocol)
	}
	comptroller, err := indexer.ParseAddress(comptrollerHex)
	if err != nil {
		return fmt.Errorf("comptroller: %w", err)
	}

	markets, err := indexer.ParseAddresses(cfg.Markets)
	if err != nil {
		return err
	}

	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}
	if len(topic0) == 0 {
		decoder, err := lending.NewMoneyMarketDecoder(lending.DecoderConfig{})
		if err != nil {
			return err
		}
		topic0 = decoder.Topics()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	storageSink := storage.NewJsonlStorage(cfg.Out)

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Comptroller:       comptroller,
		Markets:           markets,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		SeedFromChain:     cfg.SeedMarkets,
	}, chainClient, storageSink, logger)

	logger.Info("indexer start",
		zap.String("network", cfg.Network),
		zap.String("protocol", cfg.Protocol),
		zap.String("comptroller", comptroller.Hex()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("markets", len(markets)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
