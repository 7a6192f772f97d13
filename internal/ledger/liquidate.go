package ledger

import (
	"go.uber.org/zap"

	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
)

// handleLiquidate records a liquidation. Both the repaid market (the emitter)
// and the collateral market must exist; otherwise nothing is written to either.
func (e *Engine) handleLiquidate(ev model.Event, data *model.LiquidateBorrowData) error {
	repaid, err := e.marketFor(ev, ev.Address)
	if err != nil {
		return err
	}
	collateral, err := e.marketFor(ev, data.CollateralMarket)
	if err != nil {
		return err
	}
	protocol, err := e.existingProtocol(collateral)
	if err != nil {
		e.logger.Warn("liquidation for market without protocol", zap.String("market", collateral.ID))
		return err
	}

	id := model.EventID(ev.Block.TxHash, ev.Block.LogIndex)
	if e.store.Liquidates.Has(id) {
		e.logger.Debug("liquidation already recorded", zap.String("id", id))
		return nil
	}

	seized, err := parseAmount("seize_tokens", data.SeizeTokens)
	if err != nil {
		e.logger.Warn("seized amount unreadable", zap.String("id", id), zap.Error(err))
		return err
	}
	repayAmount, err := parseAmount("repay_amount", data.RepayAmount)
	if err != nil {
		e.logger.Warn("repay amount unreadable", zap.String("id", id), zap.Error(err))
		return err
	}

	amountUSD := fixedpoint.ToHuman(seized, collateral.OutputTokenDecimals).Mul(collateral.OutputTokenPriceUSD)
	repayUSD := fixedpoint.ToHuman(repayAmount, repaid.InputTokenDecimals).Mul(repaid.InputTokenPriceUSD)

	e.store.Liquidates.Put(id, &model.Liquidate{
		ID:             id,
		Hash:           ev.Block.TxHash,
		LogIndex:       ev.Block.LogIndex,
		ProtocolID:     protocol.ID,
		Liquidator:     model.ID(data.Liquidator),
		Liquidatee:     model.ID(data.Borrower),
		BlockNumber:    ev.Block.Number,
		Timestamp:      ev.Block.Timestamp,
		Market:         collateral.ID,
		RepaidMarket:   repaid.ID,
		Asset:          collateral.OutputToken,
		Amount:         seized,
		AmountUSD:      amountUSD,
		RepayAmount:    repayAmount,
		RepayAmountUSD: repayUSD,
		ProfitUSD:      amountUSD.Sub(repayUSD),
	})

	collateral.CumulativeLiquidateUSD = collateral.CumulativeLiquidateUSD.Add(amountUSD)
	e.snapshots.AddMarketDelta(collateral, ev.Block.Number, ev.Block.Timestamp, model.Delta{LiquidateUSD: amountUSD})
	e.usage.Record(protocol, data.Liquidator, model.EventLiquidate, ev.Block.Number, ev.Block.Timestamp)
	e.commit(ev, protocol, collateral)
	return nil
}
