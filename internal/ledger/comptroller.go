package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
)

func (e *Engine) handleNewReserveFactor(ev model.Event, data *model.NewReserveFactorData) error {
	market, err := e.marketFor(ev, ev.Address)
	if err != nil {
		return err
	}
	protocol, err := e.existingProtocol(market)
	if err != nil {
		return err
	}
	raw, err := parseAmount("new_reserve_factor_mantissa", data.NewReserveFactorMantissa)
	if err != nil {
		e.logger.Warn("reserve factor unreadable", zap.String("market", market.ID), zap.Error(err))
		return err
	}
	market.ReserveFactor = fixedpoint.FromMantissa(raw)
	e.commit(ev, protocol, market)
	return nil
}

func (e *Engine) handleNewCollateralFactor(ev model.Event, data *model.NewCollateralFactorData) error {
	if !e.isComptroller(ev.Address) {
		return nil
	}
	market, err := e.marketFor(ev, data.Market)
	if err != nil {
		return err
	}
	protocol, err := e.existingProtocol(market)
	if err != nil {
		return err
	}
	raw, err := parseAmount("new_collateral_factor_mantissa", data.NewCollateralFactorMantissa)
	if err != nil {
		e.logger.Warn("collateral factor unreadable", zap.String("market", market.ID), zap.Error(err))
		return err
	}
	market.CollateralFactor = fixedpoint.MantissaToPercent(raw)
	market.CanUseAsCollateral = raw.Sign() > 0
	e.commit(ev, protocol, market)
	return nil
}

func (e *Engine) handleNewLiquidationIncentive(ev model.Event, data *model.NewLiquidationIncentiveData) error {
	if !e.isComptroller(ev.Address) {
		return nil
	}
	raw, err := parseAmount("new_liquidation_incentive_mantissa", data.NewLiquidationIncentiveMantissa)
	if err != nil {
		e.logger.Warn("liquidation incentive unreadable", zap.Error(err))
		return err
	}
	protocol := e.ensureProtocol(ev)
	incentive := liquidationIncentivePercent(raw)
	protocol.LiquidationIncentive = decimal.NewNullDecimal(incentive)

	markets := make([]*model.Market, 0, len(protocol.MarketIDs))
	for _, id := range protocol.MarketIDs {
		if market, ok := e.store.Markets.Get(id); ok {
			market.LiquidationPenalty = incentive
			markets = append(markets, market)
		}
	}
	e.commit(ev, protocol, markets...)
	return nil
}

func (e *Engine) handleNewPriceOracle(ev model.Event, data *model.NewPriceOracleData) error {
	if !e.isComptroller(ev.Address) {
		return nil
	}
	protocol := e.ensureProtocol(ev)
	protocol.PriceOracle = model.ID(data.NewPriceOracle)
	e.store.Protocols.Put(protocol.ID, protocol)
	return nil
}

// handleActionPaused maps pausing Mint to market activity and Borrow to
// borrowability. Other actions do not change market flags.
func (e *Engine) handleActionPaused(ev model.Event, data *model.ActionPausedData) error {
	if !e.isComptroller(ev.Address) {
		return nil
	}
	market, err := e.marketFor(ev, data.Market)
	if err != nil {
		return err
	}
	protocol, err := e.existingProtocol(market)
	if err != nil {
		return err
	}
	switch strings.ToLower(data.Action) {
	case "mint":
		market.IsActive = !data.PauseState
	case "borrow":
		market.CanBorrowFrom = !data.PauseState
	default:
		e.logger.Debug("ignoring paused action", zap.String("action", data.Action), zap.String("market", market.ID))
		return nil
	}
	e.commit(ev, protocol, market)
	return nil
}
