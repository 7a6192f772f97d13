package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/config"
	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
	"lendingScope/internal/pricing"
)

// ProtocolInfo is the identity of a deployment's protocol entity.
type ProtocolInfo struct {
	ID      string
	Name    string
	Slug    string
	Network model.Network
}

// ProtocolIdentity derives the protocol entity's identity from a deployment.
type ProtocolIdentity interface {
	Identity(d config.Deployment) ProtocolInfo
}

// DefaultProtocolIdentity keys the protocol by its comptroller address.
type DefaultProtocolIdentity struct{}

func (DefaultProtocolIdentity) Identity(d config.Deployment) ProtocolInfo {
	return ProtocolInfo{
		ID:      model.ID(d.Comptroller),
		Name:    d.Name,
		Slug:    d.Slug,
		Network: d.Network,
	}
}

// MarketUpdate reports what an accrual changed beyond the market fields the
// updater writes directly.
type MarketUpdate struct {
	Price     pricing.Resolution
	SupplyAPY model.Result[decimal.Decimal]
	BorrowAPY model.Result[decimal.Decimal]
}

// MarketUpdater refreshes a market's price, exchange rate and balances on an
// accrual. Each field is updated only when its inputs are available.
type MarketUpdater interface {
	Update(market *model.Market, ev model.Event, data *model.AccrueInterestData) MarketUpdate
}

// DefaultMarketUpdater implements the Compound v2 accrual.
type DefaultMarketUpdater struct {
	deployment config.Deployment
	resolver   *pricing.Resolver
	logger     *zap.Logger
}

// NewDefaultMarketUpdater builds the default accrual strategy.
func NewDefaultMarketUpdater(d config.Deployment, resolver *pricing.Resolver, logger *zap.Logger) *DefaultMarketUpdater {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = pricing.NewResolver(d, logger)
	}
	return &DefaultMarketUpdater{deployment: d, resolver: resolver, logger: logger}
}

func (u *DefaultMarketUpdater) Update(market *model.Market, ev model.Event, data *model.AccrueInterestData) MarketUpdate {
	block := ev.Block.Number
	fields := []zap.Field{zap.String("market", market.ID), zap.Uint64("block", block)}

	update := MarketUpdate{
		Price: u.resolver.Resolve(market.ID, block, pricing.Input{
			Raw:       ev.Calls.BigInt(model.CallUnderlyingPrice),
			Decimals:  market.InputTokenDecimals,
			NativeUSD: ev.Calls.BigInt(model.CallNativePrice),
		}),
	}
	if price, ok := update.Price.Price(); ok {
		market.InputTokenPriceUSD = price
	}

	rateRaw, rateOK := ev.Calls.BigInt(model.CallExchangeRateStored).Get()
	if rateOK {
		market.ExchangeRateRaw = rateRaw
		market.ExchangeRate = fixedpoint.ExchangeRate(rateRaw, market.InputTokenDecimals, market.OutputTokenDecimals)
	} else {
		u.logger.Warn("exchange rate unavailable, keeping previous", fields...)
	}
	market.OutputTokenPriceUSD = market.ExchangeRate.Mul(market.InputTokenPriceUSD)

	supply, supplyOK := ev.Calls.BigInt(model.CallTotalSupply).Get()
	if supplyOK {
		market.OutputTokenSupply = supply
	} else {
		u.logger.Warn("total supply unavailable, keeping previous", fields...)
	}
	if supplyOK && rateOK {
		market.InputTokenBalance = fixedpoint.UnderlyingBalance(supply, rateRaw)
	}

	if totalBorrows, err := fixedpoint.ParseBigInt(data.TotalBorrows); err == nil && data.TotalBorrows != "" {
		market.BorrowBalance = totalBorrows
	} else {
		u.logger.Warn("total borrows missing from accrual, keeping previous", fields...)
	}
	refreshBalancesUSD(market)

	if raw, ok := ev.Calls.BigInt(model.CallReserveFactor).Get(); ok {
		market.ReserveFactor = fixedpoint.FromMantissa(raw)
	}

	update.SupplyAPY = u.apy(ev.Calls.BigInt(model.CallSupplyRate), model.CallSupplyRate, fields)
	update.BorrowAPY = u.apy(ev.Calls.BigInt(model.CallBorrowRate), model.CallBorrowRate, fields)
	return update
}

func (u *DefaultMarketUpdater) apy(read model.Result[*big.Int], name string, fields []zap.Field) model.Result[decimal.Decimal] {
	raw, ok := read.Get()
	if !ok {
		u.logger.Warn("rate unavailable, keeping previous", append(fields, zap.String("read", name))...)
		return model.Unavailable[decimal.Decimal]()
	}
	return model.Available(fixedpoint.RateToAPY(raw, u.deployment.UnitsPerYear))
}
