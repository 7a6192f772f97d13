package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
)

func (e *Engine) handleAccrueInterest(ev model.Event, data *model.AccrueInterestData) error {
	market, err := e.marketFor(ev, ev.Address)
	if err != nil {
		return err
	}
	protocol, err := e.existingProtocol(market)
	if err != nil {
		e.logger.Warn("accrual for market without protocol", zap.String("market", market.ID))
		return err
	}

	update := e.updater.Update(market, ev, data)
	if price, ok := update.Price.Price(); ok {
		e.recordTokenPrice(market.InputToken, price, ev.Block.Number)
	}
	e.writeRate(market, model.SideLender, update.SupplyAPY)
	e.writeRate(market, model.SideBorrower, update.BorrowAPY)

	if interest, err := parseAmount("interest_accumulated", data.InterestAccumulated); err != nil {
		e.logger.Warn("accrued interest unreadable, revenue skipped",
			zap.String("market", market.ID),
			zap.Uint64("block", ev.Block.Number),
			zap.Error(err),
		)
	} else {
		delta := e.splitRevenue(market, interest)
		market.CumulativeTotalRevenueUSD = market.CumulativeTotalRevenueUSD.Add(delta.TotalRevenueUSD)
		market.CumulativeProtocolSideRevenueUSD = market.CumulativeProtocolSideRevenueUSD.Add(delta.ProtocolSideRevenueUSD)
		market.CumulativeSupplySideRevenueUSD = market.CumulativeSupplySideRevenueUSD.Add(delta.SupplySideRevenueUSD)
		e.snapshots.AddMarketDelta(market, ev.Block.Number, ev.Block.Timestamp, delta)
	}

	e.refreshEmissions(ev, market)
	market.LastAccrualBlock = ev.Block.Number
	e.commit(ev, protocol, market)
	return nil
}

// writeRate stores an APY on the market's variable rate for a side. An
// unavailable rate leaves the stored value as is.
func (e *Engine) writeRate(market *model.Market, side model.InterestRateSide, apy model.Result[decimal.Decimal]) {
	value, ok := apy.Get()
	if !ok {
		return
	}
	id := model.InterestRateID(side, model.RateTypeVariable, market.ID)
	rate, _ := e.store.InterestRates.Create(id, func() *model.InterestRate {
		return &model.InterestRate{ID: id, Side: side, Type: model.RateTypeVariable, Market: market.ID}
	})
	rate.Rate = value
	e.store.InterestRates.Put(id, rate)
}

func (e *Engine) recordTokenPrice(tokenID string, price decimal.Decimal, block uint64) {
	token, ok := e.store.Tokens.Get(tokenID)
	if !ok {
		e.logger.Warn("price for unknown token", zap.String("token", tokenID))
		return
	}
	token.LastPriceUSD = price
	token.LastPriceBlockNumber = block
	e.store.Tokens.Put(token.ID, token)
}

// splitRevenue values accrued interest at the market's current price and
// splits it between the protocol and suppliers. The supply side is the
// remainder, so the two sides always add up to the total.
func (e *Engine) splitRevenue(market *model.Market, interest *big.Int) model.Delta {
	total := fixedpoint.ToHuman(interest, market.InputTokenDecimals).Mul(market.InputTokenPriceUSD)
	share := market.ReserveFactor.Add(e.deployment.ProtocolShare())
	protocolSide := total.Mul(share)
	return model.Delta{
		TotalRevenueUSD:        total,
		ProtocolSideRevenueUSD: protocolSide,
		SupplySideRevenueUSD:   total.Sub(protocolSide),
	}
}
