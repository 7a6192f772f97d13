package model

import (
	"encoding/json"
	"fmt"
)

// Event decodes the payload into the typed data for its event name.
func (r TypedEventRecord) Event() (Event, error) {
	var data interface{}
	switch r.EventName {
	case EventNameMarketListed:
		data = &MarketListedData{}
	case EventNameAccrueInterest:
		data = &AccrueInterestData{}
	case EventNameMint:
		data = &MintData{}
	case EventNameRedeem:
		data = &RedeemData{}
	case EventNameBorrow:
		data = &BorrowData{}
	case EventNameRepayBorrow:
		data = &RepayBorrowData{}
	case EventNameLiquidateBorrow:
		data = &LiquidateBorrowData{}
	case EventNameNewReserveFactor:
		data = &NewReserveFactorData{}
	case EventNameNewCollateralFactor:
		data = &NewCollateralFactorData{}
	case EventNameNewLiquidationIncentive:
		data = &NewLiquidationIncentiveData{}
	case EventNameNewPriceOracle:
		data = &NewPriceOracleData{}
	case EventNameActionPaused:
		data = &ActionPausedData{}
	case EventNameRewardSpeedUpdated:
		data = &RewardSpeedUpdatedData{}
	default:
		return Event{}, fmt.Errorf("unsupported event name: %s", r.EventName)
	}

	if err := json.Unmarshal(r.Decoded, data); err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", r.EventName, err)
	}

	calls := r.Calls
	if calls == nil {
		calls = CallResults{}
	}

	return Event{
		Block: BlockMeta{
			Number:    r.BlockNumber,
			Timestamp: r.Timestamp,
			TxHash:    r.TxHash,
			LogIndex:  r.LogIndex,
		},
		Address: r.Address,
		Name:    r.EventName,
		Data:    data,
		Calls:   calls,
	}, nil
}
