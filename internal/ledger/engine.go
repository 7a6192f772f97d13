// Package ledger applies decoded money-market events to the entity store.
//
// The engine is a serial reducer: one event at a time, in chain order. Every
// contract read it consumes has already been resolved by the decoder and is
// either available or not; an unavailable read leaves its field untouched.
package ledger

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/blockrate"
	"lendingScope/internal/config"
	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
	"lendingScope/internal/pricing"
	"lendingScope/internal/snapshot"
	"lendingScope/internal/store"
	"lendingScope/internal/usage"
)

// Engine owns the accounting state transitions of one deployment.
type Engine struct {
	deployment config.Deployment
	store      *store.Store
	resolver   *pricing.Resolver
	estimator  *blockrate.Estimator
	snapshots  *snapshot.Aggregator
	usage      *usage.Tracker
	updater    MarketUpdater
	identity   ProtocolIdentity
	logger     *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMarketUpdater replaces the accrual strategy.
func WithMarketUpdater(u MarketUpdater) Option {
	return func(e *Engine) {
		if u != nil {
			e.updater = u
		}
	}
}

// WithProtocolIdentity replaces the protocol identity strategy.
func WithProtocolIdentity(p ProtocolIdentity) Option {
	return func(e *Engine) {
		if p != nil {
			e.identity = p
		}
	}
}

// WithResolver replaces the price resolver.
func WithResolver(r *pricing.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// New builds an engine for a deployment. A zero-value deployment yields an
// engine whose Apply is a no-op.
func New(d config.Deployment, s *store.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s == nil {
		s = store.New()
	}
	aggregator := snapshot.New(s, logger)
	e := &Engine{
		deployment: d,
		store:      s,
		resolver:   pricing.NewResolver(d, logger),
		estimator:  blockrate.NewEstimator(d.SecondsPerBlock, logger),
		snapshots:  aggregator,
		usage:      usage.New(s, aggregator, logger),
		identity:   DefaultProtocolIdentity{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.updater == nil {
		e.updater = NewDefaultMarketUpdater(d, e.resolver, logger)
	}
	return e
}

// Store returns the engine's entity store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Deployment returns the descriptor the engine was built with.
func (e *Engine) Deployment() config.Deployment {
	return e.deployment
}

// Apply runs the transition for one event. Returned errors describe why the
// event was rejected; in every case the store is left consistent.
func (e *Engine) Apply(ev model.Event) (err error) {
	if e.deployment.IsZero() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("transition panicked",
				zap.String("event", ev.Name),
				zap.Uint64("block", ev.Block.Number),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("%w: %s at block %d: %v", ErrTransitionPanic, ev.Name, ev.Block.Number, r)
		}
	}()

	switch data := ev.Data.(type) {
	case *model.MarketListedData:
		return e.handleMarketListed(ev, data)
	case *model.AccrueInterestData:
		return e.handleAccrueInterest(ev, data)
	case *model.MintData:
		return e.handleFlow(ev, flowInput{
			kind:    model.EventDeposit,
			account: data.Minter,
			from:    data.Minter,
			to:      ev.Address,
			amount:  data.MintAmount,
		})
	case *model.RedeemData:
		return e.handleFlow(ev, flowInput{
			kind:    model.EventWithdraw,
			account: data.Redeemer,
			from:    ev.Address,
			to:      data.Redeemer,
			amount:  data.RedeemAmount,
		})
	case *model.BorrowData:
		return e.handleFlow(ev, flowInput{
			kind:    model.EventBorrow,
			account: data.Borrower,
			from:    ev.Address,
			to:      data.Borrower,
			amount:  data.BorrowAmount,
		})
	case *model.RepayBorrowData:
		return e.handleFlow(ev, flowInput{
			kind:    model.EventRepay,
			account: data.Payer,
			from:    data.Payer,
			to:      ev.Address,
			amount:  data.RepayAmount,
		})
	case *model.LiquidateBorrowData:
		return e.handleLiquidate(ev, data)
	case *model.NewReserveFactorData:
		return e.handleNewReserveFactor(ev, data)
	case *model.NewCollateralFactorData:
		return e.handleNewCollateralFactor(ev, data)
	case *model.NewLiquidationIncentiveData:
		return e.handleNewLiquidationIncentive(ev, data)
	case *model.NewPriceOracleData:
		return e.handleNewPriceOracle(ev, data)
	case *model.ActionPausedData:
		return e.handleActionPaused(ev, data)
	case *model.RewardSpeedUpdatedData:
		return e.handleRewardSpeedUpdated(ev, data)
	default:
		e.logger.Debug("ignoring unsupported event", zap.String("event", ev.Name))
		return nil
	}
}

func (e *Engine) isComptroller(address string) bool {
	return model.ID(address) == e.deployment.Comptroller
}

// ensureProtocol returns the deployment's protocol, creating it on first use.
// Oracle and liquidation incentive reads are best effort and stay unset when
// unavailable.
func (e *Engine) ensureProtocol(ev model.Event) *model.Protocol {
	info := e.identity.Identity(e.deployment)
	protocol, created := e.store.Protocols.Create(info.ID, func() *model.Protocol {
		return &model.Protocol{
			ID:      info.ID,
			Name:    info.Name,
			Slug:    info.Slug,
			Network: info.Network,
		}
	})
	if created {
		e.logger.Info("protocol created",
			zap.String("protocol", protocol.ID),
			zap.String("name", protocol.Name),
			zap.Uint64("block", ev.Block.Number),
		)
	}

	changed := created
	if protocol.PriceOracle == "" {
		if oracle, ok := ev.Calls.String(model.CallOracle).Get(); ok {
			protocol.PriceOracle = model.ID(oracle)
			changed = true
		}
	}
	if !protocol.LiquidationIncentive.Valid {
		if raw, ok := ev.Calls.BigInt(model.CallLiquidationIncentive).Get(); ok {
			protocol.LiquidationIncentive = decimal.NewNullDecimal(liquidationIncentivePercent(raw))
			changed = true
		}
	}
	if changed {
		e.store.Protocols.Put(protocol.ID, protocol)
	}
	return protocol
}

// existingProtocol looks up a market's protocol without creating it.
func (e *Engine) existingProtocol(market *model.Market) (*model.Protocol, error) {
	protocol, ok := e.store.Protocols.Get(market.ProtocolID)
	if !ok {
		return nil, fmt.Errorf("%w: protocol %s", ErrMissingEntity, market.ProtocolID)
	}
	return protocol, nil
}

func (e *Engine) marketFor(ev model.Event, address string) (*model.Market, error) {
	id := model.ID(address)
	market, ok := e.store.Markets.Get(id)
	if !ok {
		e.logger.Warn("event for unknown market, skipping",
			zap.String("event", ev.Name),
			zap.String("market", id),
			zap.Uint64("block", ev.Block.Number),
		)
		return nil, fmt.Errorf("%w: market %s", ErrMissingEntity, id)
	}
	return market, nil
}

// refreshBalancesUSD recomputes USD balances from raw balances and the
// market's current price.
func refreshBalancesUSD(market *model.Market) {
	deposit := fixedpoint.ToHuman(market.InputTokenBalance, market.InputTokenDecimals).Mul(market.InputTokenPriceUSD)
	market.TotalDepositBalanceUSD = deposit
	market.TotalValueLockedUSD = deposit
	market.TotalBorrowBalanceUSD = fixedpoint.ToHuman(market.BorrowBalance, market.InputTokenDecimals).Mul(market.InputTokenPriceUSD)
}

// commit persists a market and refreshes every roll-up that depends on it.
func (e *Engine) commit(ev model.Event, protocol *model.Protocol, markets ...*model.Market) {
	for _, market := range markets {
		e.store.Markets.Put(market.ID, market)
		e.snapshots.WriteMarket(market, ev.Block.Number, ev.Block.Timestamp)
	}
	e.snapshots.RecomputeProtocol(protocol, ev.Block.Number, ev.Block.Timestamp)
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, err := fixedpoint.ParseBigInt(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, field, err)
	}
	return amount, nil
}

// liquidationIncentivePercent turns a 1.08e18 mantissa into 8.
func liquidationIncentivePercent(raw *big.Int) decimal.Decimal {
	return fixedpoint.FromMantissa(raw).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
}
