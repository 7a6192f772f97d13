package model

import (
	"math/big"
	"strconv"
)

// Names of the contract reads attached to a typed event.
const (
	CallTotalSupply          = "totalSupply"
	CallExchangeRateStored   = "exchangeRateStored"
	CallSupplyRate           = "supplyRate"
	CallBorrowRate           = "borrowRate"
	CallReserveFactor        = "reserveFactorMantissa"
	CallUnderlyingPrice      = "underlyingPrice"
	CallNativePrice          = "nativePrice"
	CallRewardPrice          = "rewardPrice"
	CallOracle               = "oracle"
	CallLiquidationIncentive = "liquidationIncentiveMantissa"
	CallUnderlying           = "underlying"
	CallUnderlyingName       = "underlyingName"
	CallUnderlyingSymbol     = "underlyingSymbol"
	CallUnderlyingDecimals   = "underlyingDecimals"
	CallName                 = "name"
	CallSymbol               = "symbol"
	CallDecimals             = "decimals"
)

// CallResults holds resolved contract reads by name. A missing key means the
// read reverted or was not attempted.
type CallResults map[string]string

// Set records a successful read.
func (c CallResults) Set(name, value string) {
	c[name] = value
}

// String returns the raw value of a read.
func (c CallResults) String(name string) Result[string] {
	value, ok := c[name]
	if !ok || value == "" {
		return Unavailable[string]()
	}
	return Available(value)
}

// BigInt returns a read parsed as a base-10 integer.
func (c CallResults) BigInt(name string) Result[*big.Int] {
	value, ok := c[name]
	if !ok {
		return Unavailable[*big.Int]()
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return Unavailable[*big.Int]()
	}
	return Available(parsed)
}

// Uint8 returns a read parsed as a small unsigned integer, such as decimals.
func (c CallResults) Uint8(name string) Result[uint8] {
	value, ok := c[name]
	if !ok {
		return Unavailable[uint8]()
	}
	parsed, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return Unavailable[uint8]()
	}
	return Available(uint8(parsed))
}
