package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/config"
	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
)

const unknownTokenLabel = "unknown"

func (e *Engine) handleMarketListed(ev model.Event, data *model.MarketListedData) error {
	if !e.isComptroller(ev.Address) {
		e.logger.Debug("market listed by foreign comptroller", zap.String("address", ev.Address))
		return nil
	}
	marketID := model.ID(data.Market)
	if e.store.Markets.Has(marketID) {
		e.logger.Debug("market already listed", zap.String("market", marketID))
		return nil
	}

	input, err := e.listingInputToken(ev, marketID)
	if err != nil {
		return err
	}
	outputDecimals, ok := ev.Calls.Uint8(model.CallDecimals).Get()
	if !ok {
		e.logger.Warn("share token decimals unavailable, market not listed",
			zap.String("market", marketID),
			zap.Uint64("block", ev.Block.Number),
		)
		return fmt.Errorf("%w: decimals of %s", ErrIncompleteListing, marketID)
	}
	output := config.TokenMeta{
		Address:  marketID,
		Name:     readOr(ev.Calls, model.CallName, unknownTokenLabel),
		Symbol:   readOr(ev.Calls, model.CallSymbol, unknownTokenLabel),
		Decimals: outputDecimals,
	}

	if e.deployment.ListingOrderSuspect {
		e.logger.Warn("listing metadata order is unverified for this deployment",
			zap.String("market", marketID),
			zap.String("input_token", input.Address),
			zap.String("input_symbol", input.Symbol),
			zap.String("output_symbol", output.Symbol),
		)
	}

	protocol := e.ensureProtocol(ev)
	e.ensureToken(input)
	e.ensureToken(output)

	market := model.NewMarket(marketID)
	market.ProtocolID = protocol.ID
	market.Name = output.Name
	market.InputToken = input.Address
	market.OutputToken = output.Address
	market.InputTokenDecimals = input.Decimals
	market.OutputTokenDecimals = output.Decimals
	market.CreatedBlockNumber = ev.Block.Number
	market.CreatedTimestamp = ev.Block.Timestamp
	market.IsActive = true
	market.CanBorrowFrom = true
	if protocol.LiquidationIncentive.Valid {
		market.LiquidationPenalty = protocol.LiquidationIncentive.Decimal
	}
	if raw, ok := ev.Calls.BigInt(model.CallReserveFactor).Get(); ok {
		market.ReserveFactor = fixedpoint.FromMantissa(raw)
	}

	for _, side := range []model.InterestRateSide{model.SideLender, model.SideBorrower} {
		id := model.InterestRateID(side, model.RateTypeVariable, marketID)
		e.store.InterestRates.Create(id, func() *model.InterestRate {
			return &model.InterestRate{ID: id, Side: side, Type: model.RateTypeVariable, Market: marketID}
		})
		market.Rates = append(market.Rates, id)
	}

	if reward := e.deployment.RewardToken; reward != nil {
		e.ensureToken(*reward)
		for _, rewardType := range []model.RewardTokenType{model.RewardBorrow, model.RewardDeposit} {
			id := model.RewardTokenID(rewardType, reward.Address)
			e.store.RewardTokens.Create(id, func() *model.RewardToken {
				return &model.RewardToken{ID: id, Token: model.ID(reward.Address), Type: rewardType}
			})
			market.RewardTokens = append(market.RewardTokens, id)
		}
		sort.Strings(market.RewardTokens)
		n := len(market.RewardTokens)
		market.RewardSpeeds = zeroInts(n)
		market.RewardTokenEmissionsAmount = zeroInts(n)
		market.RewardTokenEmissionsUSD = make([]decimal.Decimal, n)
	}

	protocol.MarketIDs = append(protocol.MarketIDs, marketID)
	e.logger.Info("market listed",
		zap.String("market", marketID),
		zap.String("symbol", output.Symbol),
		zap.String("underlying", input.Address),
		zap.Uint64("block", ev.Block.Number),
	)
	e.commit(ev, protocol, market)
	return nil
}

// listingInputToken resolves the underlying token. Native markets take their
// metadata from the deployment; every other market needs the underlying reads.
func (e *Engine) listingInputToken(ev model.Event, marketID string) (config.TokenMeta, error) {
	if e.deployment.IsNativeMarket(marketID) {
		return e.deployment.NativeToken, nil
	}
	address, ok := ev.Calls.String(model.CallUnderlying).Get()
	if !ok {
		e.logger.Warn("underlying token unavailable, market not listed",
			zap.String("market", marketID),
			zap.Uint64("block", ev.Block.Number),
		)
		return config.TokenMeta{}, fmt.Errorf("%w: underlying of %s", ErrIncompleteListing, marketID)
	}
	decimals, ok := ev.Calls.Uint8(model.CallUnderlyingDecimals).Get()
	if !ok {
		e.logger.Warn("underlying decimals unavailable, market not listed",
			zap.String("market", marketID),
			zap.Uint64("block", ev.Block.Number),
		)
		return config.TokenMeta{}, fmt.Errorf("%w: underlying decimals of %s", ErrIncompleteListing, marketID)
	}
	return config.TokenMeta{
		Address:  model.ID(address),
		Name:     readOr(ev.Calls, model.CallUnderlyingName, unknownTokenLabel),
		Symbol:   readOr(ev.Calls, model.CallUnderlyingSymbol, unknownTokenLabel),
		Decimals: decimals,
	}, nil
}

// ensureToken creates a token once; metadata is never overwritten.
func (e *Engine) ensureToken(meta config.TokenMeta) *model.Token {
	id := model.ID(meta.Address)
	token, _ := e.store.Tokens.Create(id, func() *model.Token {
		return &model.Token{ID: id, Name: meta.Name, Symbol: meta.Symbol, Decimals: meta.Decimals}
	})
	return token
}

func readOr(calls model.CallResults, name, fallback string) string {
	if value, ok := calls.String(name).Get(); ok {
		return value
	}
	return fallback
}

func zeroInts(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = big.NewInt(0)
	}
	return out
}
