package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lendingScope/internal/config"
	"lendingScope/internal/ledger"
	"lendingScope/internal/process"
	"lendingScope/internal/storage/postgres"
	"lendingScope/internal/store"
)

func runProcess(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProcess(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	deployment, err := cfg.Deployment(logger)
	if err != nil {
		return err
	}
	if deployment.IsZero() {
		logger.Warn("no deployment matched, events will not change any entity",
			zap.String("network", cfg.Network),
			zap.String("protocol", cfg.Protocol),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}

	var stateStore process.StateStore
	if cfg.StateFile != "" {
		stateStore = &process.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &process.DBStateStore{Store: pg, Name: cfg.StateName}
	}

	engine := ledger.New(deployment, store.New(), logger)
	processor := process.NewProcessor(process.Config{
		FlushBlocks: cfg.FlushBlocks,
		StateStore:  stateStore,
	}, engine, pg, logger)

	if err := processor.Hydrate(ctx, pg); err != nil {
		return err
	}

	logger.Info("process start",
		zap.String("network", cfg.Network),
		zap.String("protocol", cfg.Protocol),
		zap.String("deployment", deployment.Name),
		zap.String("in", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("flush_blocks", cfg.FlushBlocks),
		zap.String("state_file", cfg.StateFile),
		zap.String("state_name", cfg.StateName),
	)

	_, err = processor.Run(ctx, cfg.Input)
	return err
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	// Keyword/value DSNs are not URLs; hide them whole.
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	if u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
