// Package pricing turns oracle reads into USD prices.
package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/config"
	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
)

// Kind tags the outcome of a price resolution.
type Kind int

const (
	// KeepPrevious means no usable price; the caller keeps its stored value.
	KeepPrevious Kind = iota
	Resolved
	Overridden
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Overridden:
		return "overridden"
	default:
		return "keep_previous"
	}
}

// Resolution is a tri-state price outcome.
type Resolution struct {
	Kind     Kind
	PriceUSD decimal.Decimal
}

// Price returns the price and false when the caller must keep its previous value.
func (r Resolution) Price() (decimal.Decimal, bool) {
	if r.Kind == KeepPrevious {
		return decimal.Zero, false
	}
	return r.PriceUSD, true
}

// Input carries the reads needed to price one underlying token.
type Input struct {
	Raw      model.Result[*big.Int]
	Decimals uint8
	// NativeUSD is the native asset's USD price as an 18-decimal mantissa. Only
	// native-denominated oracles need it.
	NativeUSD model.Result[*big.Int]
}

// UnderlyingPricer converts an oracle read into a USD price.
type UnderlyingPricer interface {
	PriceUSD(in Input) model.Result[decimal.Decimal]
}

// NewUnderlyingPricer selects the pricer for a deployment's oracle denomination.
func NewUnderlyingPricer(mode config.PricingMode) UnderlyingPricer {
	if mode == config.PricingOracleNative {
		return OracleNative{}
	}
	return OracleUSD{}
}

// OracleUSD reads prices already quoted in USD, scaled by 10^(36 - decimals).
type OracleUSD struct{}

func (OracleUSD) PriceUSD(in Input) model.Result[decimal.Decimal] {
	raw, ok := in.Raw.Get()
	if !ok || raw == nil || raw.Sign() <= 0 {
		return model.Unavailable[decimal.Decimal]()
	}
	return model.Available(scaleOraclePrice(raw, in.Decimals))
}

// OracleNative reads prices quoted in the native asset and converts them
// with the native USD price.
type OracleNative struct{}

func (OracleNative) PriceUSD(in Input) model.Result[decimal.Decimal] {
	raw, ok := in.Raw.Get()
	if !ok || raw == nil || raw.Sign() <= 0 {
		return model.Unavailable[decimal.Decimal]()
	}
	native, ok := in.NativeUSD.Get()
	if !ok || native == nil || native.Sign() <= 0 {
		return model.Unavailable[decimal.Decimal]()
	}
	return model.Available(scaleOraclePrice(raw, in.Decimals).Mul(fixedpoint.FromMantissa(native)))
}

// Oracles return prices with 2*mantissa - decimals fractional digits so that
// price * amount keeps a single mantissa.
func scaleOraclePrice(raw *big.Int, decimals uint8) decimal.Decimal {
	exp := 2*fixedpoint.MantissaDecimals - int32(decimals)
	return decimal.NewFromBigInt(raw, -exp)
}

// Resolver applies the override allow-list and the deployment's pricer.
type Resolver struct {
	overrides *OverrideTable
	pricer    UnderlyingPricer
	logger    *zap.Logger
}

// NewResolver builds the resolver for a deployment.
func NewResolver(d config.Deployment, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		overrides: NewOverrideTable(d.OracleOverrides),
		pricer:    NewUnderlyingPricer(d.Pricing),
		logger:    logger,
	}
}

// NewResolverWith builds a resolver from explicit parts.
func NewResolverWith(overrides *OverrideTable, pricer UnderlyingPricer, logger *zap.Logger) *Resolver {
	if overrides == nil {
		overrides = NewOverrideTable(nil)
	}
	if pricer == nil {
		pricer = OracleUSD{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{overrides: overrides, pricer: pricer, logger: logger}
}

// Resolve prices a market's underlying at a block. A matching override wins
// regardless of the read; otherwise an unusable read yields KeepPrevious.
func (r *Resolver) Resolve(market string, block uint64, in Input) Resolution {
	if price, ok := r.overrides.Lookup(market, block); ok {
		r.logger.Debug("oracle override applied",
			zap.String("market", market),
			zap.Uint64("block", block),
			zap.String("price_usd", price.String()),
		)
		return Resolution{Kind: Overridden, PriceUSD: price}
	}
	price, ok := r.pricer.PriceUSD(in).Get()
	if !ok {
		r.logger.Warn("underlying price unavailable, keeping previous",
			zap.String("market", market),
			zap.Uint64("block", block),
		)
		return Resolution{Kind: KeepPrevious}
	}
	return Resolution{Kind: Resolved, PriceUSD: price}
}

// OverrideTable is the allow-list of pinned prices for known-bad oracle windows.
type OverrideTable struct {
	byMarket map[string][]config.OracleOverride
}

// NewOverrideTable indexes overrides by market.
func NewOverrideTable(entries []config.OracleOverride) *OverrideTable {
	t := &OverrideTable{byMarket: make(map[string][]config.OracleOverride)}
	for _, e := range entries {
		id := model.ID(e.Market)
		t.byMarket[id] = append(t.byMarket[id], e)
	}
	return t
}

// Lookup returns the pinned price when the block falls inside an override window.
func (t *OverrideTable) Lookup(market string, block uint64) (decimal.Decimal, bool) {
	for _, e := range t.byMarket[model.ID(market)] {
		if block >= e.FromBlock && block <= e.ToBlock {
			return e.PriceUSD, true
		}
	}
	return decimal.Zero, false
}

// Len returns the number of overrides.
func (t *OverrideTable) Len() int {
	n := 0
	for _, entries := range t.byMarket {
		n += len(entries)
	}
	return n
}
