package lending

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lendingScope/internal/config"
	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
)

// callSet resolves contract reads at one block into CallResults. A read that
// reverts or fails to unpack is left out of the results.
type callSet struct {
	ctx        context.Context
	dctx       DecodeContext
	deployment config.Deployment
	mm         abi.ABI
	block      *big.Int
	calls      model.CallResults
	logger     *zap.Logger
}

func newCallSet(dctx DecodeContext, mm abi.ABI, blockNumber uint64) *callSet {
	return &callSet{
		ctx:        dctx.context(),
		dctx:       dctx,
		deployment: dctx.Deployment,
		mm:         mm,
		block:      new(big.Int).SetUint64(blockNumber),
		calls:      model.CallResults{},
		logger:     dctx.logger(),
	}
}

func (s *callSet) read(name string, to common.Address, parsed abi.ABI, method string, args ...interface{}) (interface{}, bool) {
	values, err := callMethod(s.ctx, s.dctx.Chain, to, parsed, method, s.block, args...)
	if err != nil {
		s.logger.Debug("contract read unavailable",
			zap.String("call", name),
			zap.String("contract", to.Hex()),
			zap.Uint64("block", s.block.Uint64()),
			zap.Error(err),
		)
		return nil, false
	}
	return values[0], true
}

func (s *callSet) uint(name string, to common.Address, method string, args ...interface{}) (*big.Int, bool) {
	value, ok := s.read(name, to, s.mm, method, args...)
	if !ok {
		return nil, false
	}
	n, err := asBigInt(value)
	if err != nil {
		s.logger.Debug("contract read has unexpected type", zap.String("call", name), zap.Error(err))
		return nil, false
	}
	s.calls.Set(name, n.String())
	return n, true
}

func (s *callSet) address(name string, to common.Address, method string) (common.Address, bool) {
	value, ok := s.read(name, to, s.mm, method)
	if !ok {
		return common.Address{}, false
	}
	addr, err := asAddress(value)
	if err != nil || addr == (common.Address{}) {
		return common.Address{}, false
	}
	s.calls.Set(name, strings.ToLower(addr.Hex()))
	return addr, true
}

func (s *callSet) comptroller() common.Address {
	return common.HexToAddress(s.deployment.Comptroller)
}

func (s *callSet) rateMethod(side string) string {
	if s.deployment.RateBasis == model.RateBasisTimestamp {
		return side + "RatePerTimestamp"
	}
	return side + "RatePerBlock"
}

func (s *callSet) marketState(market common.Address) {
	s.uint(model.CallTotalSupply, market, "totalSupply")
	s.uint(model.CallExchangeRateStored, market, "exchangeRateStored")
	s.uint(model.CallSupplyRate, market, s.rateMethod("supply"))
	s.uint(model.CallBorrowRate, market, s.rateMethod("borrow"))
	s.uint(model.CallReserveFactor, market, "reserveFactorMantissa")
}

func (s *callSet) protocolParams() {
	s.address(model.CallOracle, s.comptroller(), "oracle")
	s.uint(model.CallLiquidationIncentive, s.comptroller(), "liquidationIncentiveMantissa")
}

// prices reads the oracle at the event block for the market, the reward
// token's pricing market and, in oracle-native mode, the native USD feed.
func (s *callSet) prices(market *common.Address) {
	oracle, ok := s.address(model.CallOracle, s.comptroller(), "oracle")
	if ok {
		if market != nil {
			s.uint(model.CallUnderlyingPrice, oracle, "getUnderlyingPrice", *market)
		}
		if s.deployment.RewardToken != nil && s.deployment.RewardPriceMarket != "" {
			s.uint(model.CallRewardPrice, oracle, "getUnderlyingPrice", common.HexToAddress(s.deployment.RewardPriceMarket))
		}
	}
	if s.deployment.Pricing == config.PricingOracleNative {
		s.nativePrice()
	}
}

// nativePrice reads the native USD feed and stores it as an 18-decimal mantissa.
func (s *callSet) nativePrice() {
	if s.deployment.NativeUSDFeed == "" {
		return
	}
	feedABI, err := priceFeedABI.get()
	if err != nil {
		s.logger.Error("parse price feed abi", zap.Error(err))
		return
	}
	feed := common.HexToAddress(s.deployment.NativeUSDFeed)
	answerValue, ok := s.read(model.CallNativePrice, feed, feedABI, "latestAnswer")
	if !ok {
		return
	}
	decimalsValue, ok := s.read(model.CallNativePrice, feed, feedABI, "decimals")
	if !ok {
		return
	}
	answer, err := asBigInt(answerValue)
	if err != nil || answer.Sign() <= 0 {
		return
	}
	decimals, err := asUint8(decimalsValue)
	if err != nil {
		return
	}
	mantissa := new(big.Int).Set(answer)
	shift := int(fixedpoint.MantissaDecimals) - int(decimals)
	if shift > 0 {
		mantissa.Mul(mantissa, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shift)), nil))
	} else if shift < 0 {
		mantissa.Quo(mantissa, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-shift)), nil))
	}
	s.calls.Set(model.CallNativePrice, mantissa.String())
}

// listing reads the share token and underlying metadata of a new market.
func (s *callSet) listing(market common.Address) {
	if meta, ok := s.tokenMeta(market); ok {
		s.setMeta(model.CallName, model.CallSymbol, model.CallDecimals, meta)
	}
	s.uint(model.CallReserveFactor, market, "reserveFactorMantissa")
	s.protocolParams()

	if s.deployment.IsNativeMarket(market.Hex()) {
		return
	}
	underlying, ok := s.address(model.CallUnderlying, market, "underlying")
	if !ok {
		return
	}
	if meta, ok := s.tokenMeta(underlying); ok {
		s.setMeta(model.CallUnderlyingName, model.CallUnderlyingSymbol, model.CallUnderlyingDecimals, meta)
	}
}

func (s *callSet) tokenMeta(token common.Address) (config.TokenMeta, bool) {
	cache := s.dctx.TokenMetaCache
	if cache != nil {
		if meta, ok := cache.Get(token); ok {
			return meta, true
		}
	}
	meta, err := FetchTokenMeta(s.ctx, s.dctx.Chain, token, s.block, s.logger)
	if err != nil {
		s.logger.Warn("token metadata unavailable", zap.String("token", token.Hex()), zap.Error(err))
		return config.TokenMeta{}, false
	}
	if cache != nil {
		cache.Set(token, meta)
	}
	return meta, true
}

func (s *callSet) setMeta(nameKey, symbolKey, decimalsKey string, meta config.TokenMeta) {
	if meta.Name != "" {
		s.calls.Set(nameKey, meta.Name)
	}
	if meta.Symbol != "" {
		s.calls.Set(symbolKey, meta.Symbol)
	}
	s.calls.Set(decimalsKey, strconv.Itoa(int(meta.Decimals)))
}

// attachCalls resolves the reads an event's transition consumes.
func attachCalls(dctx DecodeContext, mm abi.ABI, log model.LogRecord, name string, decoded interface{}) model.CallResults {
	s := newCallSet(dctx, mm, log.BlockNumber)
	emitter := common.HexToAddress(log.Address)

	switch name {
	case model.EventNameMarketListed:
		data := decoded.(model.MarketListedData)
		s.listing(common.HexToAddress(data.Market))
	case model.EventNameAccrueInterest:
		s.marketState(emitter)
		s.prices(&emitter)
	case model.EventNameRewardSpeedUpdated:
		s.prices(nil)
	case model.EventNameNewLiquidationIncentive, model.EventNameNewPriceOracle:
		s.protocolParams()
	}
	return s.calls
}
