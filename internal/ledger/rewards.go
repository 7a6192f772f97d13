package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lendingScope/internal/blockrate"
	"lendingScope/internal/fixedpoint"
	"lendingScope/internal/model"
	"lendingScope/internal/pricing"
)

func (e *Engine) handleRewardSpeedUpdated(ev model.Event, data *model.RewardSpeedUpdatedData) error {
	if !e.isComptroller(ev.Address) {
		return nil
	}
	market, err := e.marketFor(ev, data.Market)
	if err != nil {
		return err
	}
	reward := e.deployment.RewardToken
	if reward == nil {
		e.logger.Debug("reward speed update without configured reward token", zap.String("market", market.ID))
		return nil
	}
	protocol, err := e.existingProtocol(market)
	if err != nil {
		return err
	}
	speed, err := parseAmount("new_speed", data.NewSpeed)
	if err != nil {
		e.logger.Warn("reward speed unreadable", zap.String("market", market.ID), zap.Error(err))
		return err
	}

	var types []model.RewardTokenType
	switch data.Side {
	case model.RewardSideSupply:
		types = []model.RewardTokenType{model.RewardDeposit}
	case model.RewardSideBorrow:
		types = []model.RewardTokenType{model.RewardBorrow}
	default:
		types = []model.RewardTokenType{model.RewardDeposit, model.RewardBorrow}
	}

	e.alignRewardArrays(market)
	for _, rewardType := range types {
		idx := rewardIndex(market, model.RewardTokenID(rewardType, reward.Address))
		if idx < 0 {
			e.logger.Warn("market has no reward slot",
				zap.String("market", market.ID),
				zap.String("type", string(rewardType)),
			)
			continue
		}
		market.RewardSpeeds[idx] = new(big.Int).Set(speed)
	}

	e.refreshEmissions(ev, market)
	e.commit(ev, protocol, market)
	return nil
}

// refreshEmissions projects each reward speed onto a daily amount and values
// it at the reward token's latest known price.
func (e *Engine) refreshEmissions(ev model.Event, market *model.Market) {
	reward := e.deployment.RewardToken
	if reward == nil || len(market.RewardTokens) == 0 {
		return
	}
	e.alignRewardArrays(market)

	block, ts := ev.Block.Number, ev.Block.Timestamp
	priced := false
	var price decimal.Decimal
	resolution := e.resolver.Resolve(e.deployment.RewardPriceMarket, block, pricing.Input{
		Raw:       ev.Calls.BigInt(model.CallRewardPrice),
		Decimals:  reward.Decimals,
		NativeUSD: ev.Calls.BigInt(model.CallNativePrice),
	})
	if resolved, ok := resolution.Price(); ok {
		e.recordTokenPrice(model.ID(reward.Address), resolved, block)
		price, priced = resolved, true
	} else if token, ok := e.store.Tokens.Get(model.ID(reward.Address)); ok && token.LastPriceBlockNumber > 0 {
		price, priced = token.LastPriceUSD, true
	}

	buf := e.buffer()
	for i := range market.RewardTokens {
		speed := decimal.NewFromBigInt(market.RewardSpeeds[i], 0)
		perDay := e.estimator.PerDay(buf, ts, block, speed, e.deployment.RewardBasis)
		amount := fixedpoint.ToRaw(perDay)
		market.RewardTokenEmissionsAmount[i] = amount
		if priced {
			market.RewardTokenEmissionsUSD[i] = fixedpoint.ToHuman(amount, reward.Decimals).Mul(price)
		}
	}
	e.store.Buffers.Put(buf.ID, buf)
}

// buffer returns the deployment's block-rate buffer, creating it on first use.
func (e *Engine) buffer() *model.CircularBuffer {
	buf, _ := e.store.Buffers.Create(model.CircularBufferID, func() *model.CircularBuffer {
		return blockrate.NewBuffer(blockrate.DefaultWindowSeconds, blockrate.DefaultStorageIntervalSeconds)
	})
	return buf
}

// alignRewardArrays pads the parallel reward slices to the reward token list.
func (e *Engine) alignRewardArrays(market *model.Market) {
	n := len(market.RewardTokens)
	for len(market.RewardSpeeds) < n {
		market.RewardSpeeds = append(market.RewardSpeeds, big.NewInt(0))
	}
	for len(market.RewardTokenEmissionsAmount) < n {
		market.RewardTokenEmissionsAmount = append(market.RewardTokenEmissionsAmount, big.NewInt(0))
	}
	for len(market.RewardTokenEmissionsUSD) < n {
		market.RewardTokenEmissionsUSD = append(market.RewardTokenEmissionsUSD, decimal.Zero)
	}
	for i := range market.RewardSpeeds {
		if market.RewardSpeeds[i] == nil {
			market.RewardSpeeds[i] = big.NewInt(0)
		}
	}
}

func rewardIndex(market *model.Market, id string) int {
	for i, existing := range market.RewardTokens {
		if existing == id {
			return i
		}
	}
	return -1
}
