package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownNetwork is returned for network names outside the supported set.
var ErrUnknownNetwork = errors.New("unknown network")

// Network identifies a supported EVM network.
type Network string

const (
	NetworkUnknown  Network = ""
	NetworkMainnet  Network = "MAINNET"
	NetworkBSC      Network = "BSC"
	NetworkPolygon  Network = "MATIC"
	NetworkArbitrum Network = "ARBITRUM_ONE"
	NetworkOptimism Network = "OPTIMISM"
	NetworkBase     Network = "BASE"
	NetworkMoonbeam Network = "MOONBEAM"
)

var knownNetworks = []Network{
	NetworkMainnet,
	NetworkBSC,
	NetworkPolygon,
	NetworkArbitrum,
	NetworkOptimism,
	NetworkBase,
	NetworkMoonbeam,
}

// ParseNetwork resolves a network name, accepting common aliases.
func ParseNetwork(input string) (Network, error) {
	name := strings.ToUpper(strings.TrimSpace(input))
	switch name {
	case "ETHEREUM", "ETH":
		return NetworkMainnet, nil
	case "BNB", "BINANCE":
		return NetworkBSC, nil
	case "POLYGON":
		return NetworkPolygon, nil
	case "ARBITRUM":
		return NetworkArbitrum, nil
	}
	for _, n := range knownNetworks {
		if string(n) == name {
			return n, nil
		}
	}
	return NetworkUnknown, fmt.Errorf("%w: %q", ErrUnknownNetwork, input)
}

// InterestRateSide is the side of the market a rate applies to.
type InterestRateSide string

const (
	SideLender   InterestRateSide = "LENDER"
	SideBorrower InterestRateSide = "BORROWER"
)

// InterestRateType distinguishes rate models.
type InterestRateType string

const (
	RateTypeVariable InterestRateType = "VARIABLE"
	RateTypeStable   InterestRateType = "STABLE"
)

// RewardTokenType is the activity a reward token is emitted for.
type RewardTokenType string

const (
	RewardDeposit RewardTokenType = "DEPOSIT"
	RewardBorrow  RewardTokenType = "BORROW"
)

// RateBasis says whether an emission speed is quoted per block or per second.
type RateBasis string

const (
	RateBasisBlock     RateBasis = "block"
	RateBasisTimestamp RateBasis = "timestamp"
)

// ParseRateBasis validates a rate basis string. Empty means per block.
func ParseRateBasis(input string) (RateBasis, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "block":
		return RateBasisBlock, nil
	case "timestamp", "second":
		return RateBasisTimestamp, nil
	default:
		return "", fmt.Errorf("unknown rate basis: %q", input)
	}
}

// EventType classifies user actions for usage counters.
type EventType string

const (
	EventDeposit   EventType = "DEPOSIT"
	EventWithdraw  EventType = "WITHDRAW"
	EventBorrow    EventType = "BORROW"
	EventRepay     EventType = "REPAY"
	EventLiquidate EventType = "LIQUIDATE"
)

// Granularity is a snapshot bucket length.
type Granularity string

const (
	Hourly Granularity = "HOURLY"
	Daily  Granularity = "DAILY"
)

const (
	SecondsPerHour = 3600
	SecondsPerDay  = 86400
)

// Seconds returns the bucket length.
func (g Granularity) Seconds() uint64 {
	if g == Hourly {
		return SecondsPerHour
	}
	return SecondsPerDay
}

// Bucket returns the bucket index for a timestamp.
func (g Granularity) Bucket(ts uint64) uint64 {
	return ts / g.Seconds()
}
