// Package snapshot maintains hourly and daily roll-ups of market and protocol state.
package snapshot

import (
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/model"
	"lendingScope/internal/store"
)

// Granularities are written in this order on every update.
var Granularities = []model.Granularity{model.Hourly, model.Daily}

// Aggregator writes snapshots into the store.
type Aggregator struct {
	store  *store.Store
	logger *zap.Logger
}

// New builds an aggregator over a store.
func New(s *store.Store, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: s, logger: logger}
}

// MarketSnapshot returns the market's snapshot for the bucket containing ts,
// creating it with zero deltas on first touch.
func (a *Aggregator) MarketSnapshot(g model.Granularity, market *model.Market, block, ts uint64) *model.MarketSnapshot {
	bucket := g.Bucket(ts)
	id := model.SnapshotID(g, market.ID, bucket)
	snap, created := a.store.MarketSnapshots.Create(id, func() *model.MarketSnapshot {
		return &model.MarketSnapshot{
			ID:          id,
			Granularity: g,
			Market:      market.ID,
			ProtocolID:  market.ProtocolID,
			Bucket:      bucket,
		}
	})
	if created {
		a.logger.Debug("market snapshot opened",
			zap.String("market", market.ID),
			zap.String("granularity", string(g)),
			zap.Uint64("bucket", bucket),
		)
	}
	return snap
}

// AddMarketDelta accumulates a delta into the market's current hourly and daily buckets.
func (a *Aggregator) AddMarketDelta(market *model.Market, block, ts uint64, d model.Delta) {
	for _, g := range Granularities {
		snap := a.MarketSnapshot(g, market, block, ts)
		snap.Delta = snap.Delta.Add(d)
		a.store.MarketSnapshots.Put(snap.ID, snap)
	}
}

// WriteMarket copies the market's current state into its current buckets.
func (a *Aggregator) WriteMarket(market *model.Market, block, ts uint64) {
	for _, g := range Granularities {
		snap := a.MarketSnapshot(g, market, block, ts)
		snap.BlockNumber = block
		snap.Timestamp = ts
		snap.TotalValueLockedUSD = market.TotalValueLockedUSD
		snap.TotalDepositBalanceUSD = market.TotalDepositBalanceUSD
		snap.TotalBorrowBalanceUSD = market.TotalBorrowBalanceUSD
		snap.InputTokenBalance = new(big.Int).Set(market.InputTokenBalance)
		snap.OutputTokenSupply = new(big.Int).Set(market.OutputTokenSupply)
		snap.ExchangeRate = market.ExchangeRate
		snap.InputTokenPriceUSD = market.InputTokenPriceUSD
		snap.OutputTokenPriceUSD = market.OutputTokenPriceUSD
		snap.SupplyRate, snap.BorrowRate = a.rates(market)
		snap.RewardTokenEmissionsAmount = copyInts(market.RewardTokenEmissionsAmount)
		snap.RewardTokenEmissionsUSD = append([]decimal.Decimal(nil), market.RewardTokenEmissionsUSD...)
		snap.Cumulative = market.Cumulative()
		a.store.MarketSnapshots.Put(snap.ID, snap)
	}
}

func (a *Aggregator) rates(market *model.Market) (decimal.Decimal, decimal.Decimal) {
	var supply, borrow decimal.Decimal
	for _, id := range market.Rates {
		rate, ok := a.store.InterestRates.Get(id)
		if !ok {
			continue
		}
		switch rate.Side {
		case model.SideLender:
			supply = rate.Rate
		case model.SideBorrower:
			borrow = rate.Rate
		}
	}
	return supply, borrow
}

// RecomputeProtocol rebuilds the protocol's aggregate fields from its markets
// and rewrites the current financial snapshots. Nothing is carried over from
// the protocol's previous values.
func (a *Aggregator) RecomputeProtocol(protocol *model.Protocol, block, ts uint64) {
	var (
		tvl, deposit, borrow decimal.Decimal
		cumulative           model.Cumulative
	)
	markets := make([]*model.Market, 0, len(protocol.MarketIDs))
	for _, id := range protocol.MarketIDs {
		market, ok := a.store.Markets.Get(id)
		if !ok {
			a.logger.Warn("protocol references unknown market", zap.String("market", id))
			continue
		}
		markets = append(markets, market)
		tvl = tvl.Add(market.TotalValueLockedUSD)
		deposit = deposit.Add(market.TotalDepositBalanceUSD)
		borrow = borrow.Add(market.TotalBorrowBalanceUSD)
		cumulative = cumulative.Add(market.Cumulative())
	}

	protocol.TotalValueLockedUSD = tvl
	protocol.TotalDepositBalanceUSD = deposit
	protocol.TotalBorrowBalanceUSD = borrow
	protocol.SetCumulative(cumulative)
	a.store.Protocols.Put(protocol.ID, protocol)

	for _, g := range Granularities {
		bucket := g.Bucket(ts)
		var delta model.Delta
		for _, market := range markets {
			if snap, ok := a.store.MarketSnapshots.Get(model.SnapshotID(g, market.ID, bucket)); ok {
				delta = delta.Add(snap.Delta)
			}
		}

		id := model.SnapshotID(g, protocol.ID, bucket)
		snap, _ := a.store.FinancialsSnapshots.Create(id, func() *model.FinancialsSnapshot {
			return &model.FinancialsSnapshot{
				ID:          id,
				Granularity: g,
				ProtocolID:  protocol.ID,
				Bucket:      bucket,
			}
		})
		snap.BlockNumber = block
		snap.Timestamp = ts
		snap.TotalValueLockedUSD = tvl
		snap.TotalDepositBalanceUSD = deposit
		snap.TotalBorrowBalanceUSD = borrow
		snap.Cumulative = cumulative
		snap.Delta = delta
		a.store.FinancialsSnapshots.Put(id, snap)
	}
}

// UsageSnapshot returns the protocol's usage snapshot for the bucket
// containing ts, creating it on first touch.
func (a *Aggregator) UsageSnapshot(g model.Granularity, protocolID string, block, ts uint64) *model.UsageSnapshot {
	bucket := g.Bucket(ts)
	id := model.SnapshotID(g, protocolID, bucket)
	snap, _ := a.store.UsageSnapshots.Create(id, func() *model.UsageSnapshot {
		return &model.UsageSnapshot{
			ID:          id,
			Granularity: g,
			ProtocolID:  protocolID,
			Bucket:      bucket,
		}
	})
	snap.BlockNumber = block
	snap.Timestamp = ts
	return snap
}

func copyInts(values []*big.Int) []*big.Int {
	if values == nil {
		return nil
	}
	out := make([]*big.Int, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = big.NewInt(0)
			continue
		}
		out[i] = new(big.Int).Set(v)
	}
	return out
}
