package lending

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"lendingScope/internal/chain"
)

// ListedMarket returns the market announced by a comptroller MarketListed log.
func ListedMarket(log types.Log) (common.Address, bool) {
	mm, err := MoneyMarketABI()
	if err != nil || len(log.Topics) == 0 {
		return common.Address{}, false
	}
	event := mm.Events["MarketListed"]
	if log.Topics[0] != event.ID {
		return common.Address{}, false
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil || len(values) != 1 {
		return common.Address{}, false
	}
	market, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, false
	}
	return market, true
}

// ListedMarkets reads every market the comptroller knows at a block. Used to
// seed discovery when a scan starts after the markets were listed.
func ListedMarkets(ctx context.Context, reader chain.Reader, comptroller common.Address, block uint64) ([]common.Address, error) {
	if reader == nil {
		return nil, fmt.Errorf("chain reader is nil")
	}
	mm, err := MoneyMarketABI()
	if err != nil {
		return nil, fmt.Errorf("parse money market abi: %w", err)
	}
	values, err := callMethod(ctx, reader, comptroller, mm, "getAllMarkets", new(big.Int).SetUint64(block))
	if err != nil {
		return nil, err
	}
	markets, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected getAllMarkets type %T", values[0])
	}
	return markets, nil
}
