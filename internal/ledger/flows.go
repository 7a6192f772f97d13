package ledger

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
)

type flowInput struct {
	kind    model.EventType
	account string
	from    string
	to      string
	amount  string
}

// handleFlow records a deposit, withdraw, borrow or repay and applies its one
// balance mutation. A flow that would push a balance below zero is rejected.
func (e *Engine) handleFlow(ev model.Event, in flowInput) error {
	market, err := e.marketFor(ev, ev.Address)
	if err != nil {
		return err
	}
	protocol, err := e.existingProtocol(market)
	if err != nil {
		e.logger.Warn("flow for market without protocol", zap.String("market", market.ID))
		return err
	}

	id := model.EventID(ev.Block.TxHash, ev.Block.LogIndex)
	if e.store.Flows.Has(id) {
		e.logger.Debug("flow already recorded", zap.String("id", id))
		return nil
	}

	amount, err := parseAmount("amount", in.amount)
	if err != nil {
		e.logger.Warn("flow amount unreadable", zap.String("id", id), zap.Error(err))
		return err
	}

	target, sign := flowBalance(market, in.kind)
	next := new(big.Int).Set(target)
	if sign > 0 {
		next.Add(next, amount)
	} else {
		next.Sub(next, amount)
	}
	if next.Sign() < 0 {
		e.logger.Error("flow would make market balance negative",
			zap.String("market", market.ID),
			zap.String("type", string(in.kind)),
			zap.String("id", id),
			zap.String("balance", target.String()),
			zap.String("amount", amount.String()),
		)
		return fmt.Errorf("%w: %s %s on %s", ErrNegativeBalance, in.kind, id, market.ID)
	}
	target.Set(next)

	amountUSD := fixedpoint.ToHuman(amount, market.InputTokenDecimals).Mul(market.InputTokenPriceUSD)
	e.store.Flows.Put(id, &model.Flow{
		ID:          id,
		Type:        in.kind,
		Hash:        ev.Block.TxHash,
		LogIndex:    ev.Block.LogIndex,
		ProtocolID:  protocol.ID,
		From:        model.ID(in.from),
		To:          model.ID(in.to),
		Account:     model.ID(in.account),
		BlockNumber: ev.Block.Number,
		Timestamp:   ev.Block.Timestamp,
		Market:      market.ID,
		Asset:       market.InputToken,
		Amount:      amount,
		AmountUSD:   amountUSD,
	})

	var delta model.Delta
	switch in.kind {
	case model.EventDeposit:
		market.CumulativeDepositUSD = market.CumulativeDepositUSD.Add(amountUSD)
		delta.DepositUSD = amountUSD
	case model.EventWithdraw:
		delta.WithdrawUSD = amountUSD
	case model.EventBorrow:
		market.CumulativeBorrowUSD = market.CumulativeBorrowUSD.Add(amountUSD)
		delta.BorrowUSD = amountUSD
	case model.EventRepay:
		delta.RepayUSD = amountUSD
	}
	refreshBalancesUSD(market)
	e.snapshots.AddMarketDelta(market, ev.Block.Number, ev.Block.Timestamp, delta)
	e.usage.Record(protocol, in.account, in.kind, ev.Block.Number, ev.Block.Timestamp)
	e.commit(ev, protocol, market)
	return nil
}

// flowBalance returns the balance a flow mutates and the direction.
func flowBalance(market *model.Market, kind model.EventType) (*big.Int, int) {
	switch kind {
	case model.EventDeposit:
		return market.InputTokenBalance, 1
	case model.EventWithdraw:
		return market.InputTokenBalance, -1
	case model.EventBorrow:
		return market.BorrowBalance, 1
	default:
		return market.BorrowBalance, -1
	}
}
