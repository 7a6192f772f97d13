// Package process replays typed event JSONL through the ledger engine and
// persists the entities it touches.
package process

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"lendingScope/internal/ledger"
	"lendingScope/internal/model"
	"lendingScope/internal/store"
)

const defaultFlushBlocks = 100

// Sink receives dirty entity rows.
type Sink interface {
	UpsertEntities(ctx context.Context, rows []store.Row) error
}

// Loader returns previously persisted entity rows.
type Loader interface {
	LoadEntities(ctx context.Context) ([]store.Row, error)
}

// Config controls processing behavior.
type Config struct {
	// FlushBlocks is the number of distinct blocks applied between flushes.
	FlushBlocks int
	StateStore  StateStore
}

// Stats counts what happened to each input line.
type Stats struct {
	Total    int
	Applied  int
	Skipped  int
	Missing  int
	Rejected int
	Failed   int
	Flushes  int
}

// Processor feeds events to an engine in file order and flushes its dirty
// entities to a sink on block boundaries.
type Processor struct {
	cfg    Config
	engine *ledger.Engine
	sink   Sink
	logger *zap.Logger
}

func NewProcessor(cfg Config, engine *ledger.Engine, sink Sink, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FlushBlocks <= 0 {
		cfg.FlushBlocks = defaultFlushBlocks
	}
	return &Processor{cfg: cfg, engine: engine, sink: sink, logger: logger}
}

// Hydrate loads persisted entities into the engine's store so a resumed run
// continues from the flushed state.
func (p *Processor) Hydrate(ctx context.Context, loader Loader) error {
	if loader == nil {
		return nil
	}
	rows, err := loader.LoadEntities(ctx)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	if err := p.engine.Store().Load(rows); err != nil {
		return fmt.Errorf("hydrate store: %w", err)
	}
	p.logger.Info("store hydrated", zap.Int("rows", len(rows)))
	return nil
}

// Run processes a typed events JSONL file.
func (p *Processor) Run(ctx context.Context, inputPath string) (Stats, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return Stats{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return p.Process(ctx, file)
}

// Process applies every record read from r. Records at or below the stored
// state block were already flushed and are skipped.
func (p *Processor) Process(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	if p.engine == nil {
		return stats, fmt.Errorf("engine is nil")
	}
	if p.sink == nil {
		return stats, fmt.Errorf("sink is nil")
	}

	var startBlock uint64
	resumed := false
	if p.cfg.StateStore != nil {
		block, ok, err := p.cfg.StateStore.Load(ctx)
		if err != nil {
			return stats, fmt.Errorf("load state: %w", err)
		}
		if ok {
			startBlock, resumed = block, true
			p.logger.Info("resume from state", zap.Uint64("last_processed_block", block))
		}
	}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var (
		currentBlock uint64
		haveBlock    bool
		pending      int
	)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			p.logger.Warn("decode typed event", zap.Error(err))
			continue
		}
		if resumed && record.BlockNumber <= startBlock {
			stats.Skipped++
			continue
		}

		if haveBlock && record.BlockNumber != currentBlock {
			pending++
			if pending >= p.cfg.FlushBlocks {
				if err := p.flush(ctx, currentBlock, &stats); err != nil {
					return stats, err
				}
				pending = 0
			}
		}
		currentBlock, haveBlock = record.BlockNumber, true

		event, err := record.Event()
		if err != nil {
			stats.Failed++
			p.logger.Warn("typed event payload", zap.Error(err), zap.String("event", record.EventName), zap.String("tx_hash", record.TxHash))
			continue
		}

		p.apply(event, &stats)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}

	if haveBlock {
		if err := p.flush(ctx, currentBlock, &stats); err != nil {
			return stats, err
		}
	}

	p.logger.Info("process complete",
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("missing", stats.Missing),
		zap.Int("rejected", stats.Rejected),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// apply never aborts the run: a rejected transition leaves the store as it was
// and processing moves on to the next event.
func (p *Processor) apply(event model.Event, stats *Stats) {
	err := p.engine.Apply(event)
	if err == nil {
		stats.Applied++
		return
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("event", event.Name),
		zap.String("address", event.Address),
		zap.Uint64("block", event.Block.Number),
		zap.Uint64("log_index", event.Block.LogIndex),
	}
	if errors.Is(err, ledger.ErrMissingEntity) {
		stats.Missing++
		p.logger.Warn("event references unknown entity", fields...)
		return
	}
	stats.Rejected++
	p.logger.Warn("event rejected", fields...)
}

func (p *Processor) flush(ctx context.Context, block uint64, stats *Stats) error {
	st := p.engine.Store()
	rows, err := st.Dirty()
	if err != nil {
		return fmt.Errorf("collect dirty rows: %w", err)
	}
	if len(rows) > 0 {
		if err := p.sink.UpsertEntities(ctx, rows); err != nil {
			return fmt.Errorf("upsert entities: %w", err)
		}
	}
	st.ClearDirty()

	if p.cfg.StateStore != nil {
		if err := p.cfg.StateStore.Save(ctx, block); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	stats.Flushes++
	p.logger.Debug("flushed entities", zap.Int("rows", len(rows)), zap.Uint64("block", block))
	return nil
}
