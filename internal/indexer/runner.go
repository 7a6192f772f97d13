package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"lendingScope/internal/chain"
	"lendingScope/internal/lending"
	"lendingScope/internal/model"
	"lendingScope/internal/storage"
)

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock   uint64
	ToBlock     uint64
	Comptroller common.Address
	// Markets are scanned from the start in addition to those discovered
	// through MarketListed.
	Markets           []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	// SeedFromChain reads getAllMarkets at FromBlock-1 when no market is known.
	SeedFromChain bool
}

// Node is what the runner needs from an RPC endpoint.
type Node interface {
	chain.LogSource
	chain.Reader
}

// Runner scans the comptroller and every discovered market for logs and writes
// them to storage in (block, log index) order.
type Runner struct {
	cfg        RunConfig
	node       Node
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
	markets    map[common.Address]struct{}
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, node Node, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		node:       node,
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		markets:    make(map[common.Address]struct{}),
	}
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.node == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Comptroller == (common.Address{}) {
		return fmt.Errorf("comptroller address is required")
	}

	chainID, err := r.node.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.node.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	for _, market := range r.cfg.Markets {
		r.track(market)
	}

	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load(r.cfg.Comptroller.Hex())
		if err != nil {
			return err
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			for _, market := range cp.Markets {
				if common.IsHexAddress(market) {
					r.track(common.HexToAddress(market))
				}
			}
			r.logger.Info("resume from checkpoint",
				zap.Uint64("last_processed", cp.LastProcessedBlock),
				zap.Uint64("from", from),
				zap.Int("markets", len(r.markets)),
			)
		}
	}

	if r.cfg.SeedFromChain && len(r.markets) == 0 && from > 0 {
		r.seedMarkets(ctx, from-1)
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.fetchRange(ctx, blockRange)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		fresh := make([]types.Log, 0, len(logs))
		blocks := make([]uint64, 0, len(logs))
		for _, log := range logs {
			if r.isDuplicate(log) {
				continue
			}
			fresh = append(fresh, log)
			if len(blocks) == 0 || blocks[len(blocks)-1] != log.BlockNumber {
				blocks = append(blocks, log.BlockNumber)
			}
		}

		timestamps, err := r.blockTimestampsWithRetry(ctx, blocks)
		if err != nil {
			return fmt.Errorf("block timestamps %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		ingestedAt := time.Now().UTC()
		records := make([]model.LogRecord, 0, len(fresh))
		for _, log := range fresh {
			ts, ok := timestamps[log.BlockNumber]
			if !ok {
				return fmt.Errorf("block timestamp %d missing", log.BlockNumber)
			}
			records = append(records, buildLogRecord(chainIDValue, log, ts, ingestedAt))
		}

		if err := r.storage.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(Checkpoint{
				Comptroller:        r.cfg.Comptroller.Hex(),
				LastProcessedBlock: blockRange.To,
				Markets:            r.marketStrings(),
			}); err != nil {
				return err
			}
		}

		r.logger.Info("batch complete",
			zap.Int("logs", len(records)),
			zap.Int("markets", len(r.markets)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

// fetchRange reads comptroller logs first so markets listed inside the range
// are scanned in the same pass.
func (r *Runner) fetchRange(ctx context.Context, blockRange BlockRange) ([]types.Log, error) {
	comptrollerLogs, err := r.filterAdaptive(ctx, blockRange, []common.Address{r.cfg.Comptroller})
	if err != nil {
		return nil, err
	}
	for _, log := range comptrollerLogs {
		if market, ok := lending.ListedMarket(log); ok {
			if r.track(market) {
				r.logger.Info("market discovered", zap.String("market", market.Hex()), zap.Uint64("block", log.BlockNumber))
			}
		}
	}

	logs := comptrollerLogs
	if markets := r.marketList(); len(markets) > 0 {
		marketLogs, err := r.filterAdaptive(ctx, blockRange, markets)
		if err != nil {
			return nil, err
		}
		logs = append(logs, marketLogs...)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}

func (r *Runner) seedMarkets(ctx context.Context, block uint64) {
	var markets []common.Address
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		markets, err = lending.ListedMarkets(ctx, r.node, r.cfg.Comptroller, block)
		return err
	})
	if err != nil {
		r.logger.Warn("seed markets from comptroller failed", zap.Uint64("block", block), zap.Error(err))
		return
	}
	for _, market := range markets {
		r.track(market)
	}
	r.logger.Info("seeded markets", zap.Int("markets", len(markets)), zap.Uint64("block", block))
}

func (r *Runner) track(market common.Address) bool {
	if _, ok := r.markets[market]; ok {
		return false
	}
	r.markets[market] = struct{}{}
	return true
}

func (r *Runner) marketList() []common.Address {
	out := make([]common.Address, 0, len(r.markets))
	for market := range r.markets {
		out = append(out, market)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func (r *Runner) marketStrings() []string {
	markets := r.marketList()
	out := make([]string, 0, len(markets))
	for _, market := range markets {
		out = append(out, strings.ToLower(market.Hex()))
	}
	return out
}

// filterAdaptive halves the window whenever the node refuses it for holding
// too many logs.
func (r *Runner) filterAdaptive(ctx context.Context, blockRange BlockRange, addresses []common.Address) ([]types.Log, error) {
	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, addresses)
	if err == nil || !tooManyResults(err) {
		return logs, err
	}
	left, right, ok := blockRange.Halve()
	if !ok {
		return nil, err
	}
	r.logger.Info("log window too large, splitting",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Uint64("blocks", blockRange.Len()),
	)
	first, err := r.filterAdaptive(ctx, left, addresses)
	if err != nil {
		return nil, err
	}
	second, err := r.filterAdaptive(ctx, right, addresses)
	if err != nil {
		return nil, err
	}
	return append(first, second...), nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.node.FilterLogs(ctx, fromBlock, toBlock, addresses, r.cfg.Topic0)
		if err == nil {
			return nil
		}
		if tooManyResults(err) {
			return permanent(err)
		}
		r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampsWithRetry(ctx context.Context, blocks []uint64) (map[uint64]uint64, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	var out map[uint64]uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		out, err = r.node.BlockTimestamps(ctx, blocks)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Int("blocks", len(blocks)))
		}
		return err
	})
	return out, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
