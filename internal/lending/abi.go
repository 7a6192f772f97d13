package lending

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// moneyMarketABIJSON covers the market token, comptroller and oracle surface
// the decoder reads. Reward speed events are listed under both the Compound
// and Venus names.
const moneyMarketABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "cashPrior", "type": "uint256"},
    {"indexed": false, "name": "interestAccumulated", "type": "uint256"},
    {"indexed": false, "name": "borrowIndex", "type": "uint256"},
    {"indexed": false, "name": "totalBorrows", "type": "uint256"}
  ], "name": "AccrueInterest", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "minter", "type": "address"},
    {"indexed": false, "name": "mintAmount", "type": "uint256"},
    {"indexed": false, "name": "mintTokens", "type": "uint256"}
  ], "name": "Mint", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "redeemer", "type": "address"},
    {"indexed": false, "name": "redeemAmount", "type": "uint256"},
    {"indexed": false, "name": "redeemTokens", "type": "uint256"}
  ], "name": "Redeem", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "borrower", "type": "address"},
    {"indexed": false, "name": "borrowAmount", "type": "uint256"},
    {"indexed": false, "name": "accountBorrows", "type": "uint256"},
    {"indexed": false, "name": "totalBorrows", "type": "uint256"}
  ], "name": "Borrow", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "payer", "type": "address"},
    {"indexed": false, "name": "borrower", "type": "address"},
    {"indexed": false, "name": "repayAmount", "type": "uint256"},
    {"indexed": false, "name": "accountBorrows", "type": "uint256"},
    {"indexed": false, "name": "totalBorrows", "type": "uint256"}
  ], "name": "RepayBorrow", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "liquidator", "type": "address"},
    {"indexed": false, "name": "borrower", "type": "address"},
    {"indexed": false, "name": "repayAmount", "type": "uint256"},
    {"indexed": false, "name": "cTokenCollateral", "type": "address"},
    {"indexed": false, "name": "seizeTokens", "type": "uint256"}
  ], "name": "LiquidateBorrow", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "oldReserveFactorMantissa", "type": "uint256"},
    {"indexed": false, "name": "newReserveFactorMantissa", "type": "uint256"}
  ], "name": "NewReserveFactor", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "cToken", "type": "address"}
  ], "name": "MarketListed", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "cToken", "type": "address"},
    {"indexed": false, "name": "oldCollateralFactorMantissa", "type": "uint256"},
    {"indexed": false, "name": "newCollateralFactorMantissa", "type": "uint256"}
  ], "name": "NewCollateralFactor", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "oldLiquidationIncentiveMantissa", "type": "uint256"},
    {"indexed": false, "name": "newLiquidationIncentiveMantissa", "type": "uint256"}
  ], "name": "NewLiquidationIncentive", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "oldPriceOracle", "type": "address"},
    {"indexed": false, "name": "newPriceOracle", "type": "address"}
  ], "name": "NewPriceOracle", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "cToken", "type": "address"},
    {"indexed": false, "name": "action", "type": "string"},
    {"indexed": false, "name": "pauseState", "type": "bool"}
  ], "name": "ActionPaused", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "cToken", "type": "address"},
    {"indexed": false, "name": "newSpeed", "type": "uint256"}
  ], "name": "CompSpeedUpdated", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "cToken", "type": "address"},
    {"indexed": false, "name": "newSpeed", "type": "uint256"}
  ], "name": "CompSupplySpeedUpdated", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "cToken", "type": "address"},
    {"indexed": false, "name": "newSpeed", "type": "uint256"}
  ], "name": "CompBorrowSpeedUpdated", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "vToken", "type": "address"},
    {"indexed": false, "name": "newSpeed", "type": "uint256"}
  ], "name": "VenusSpeedUpdated", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "vToken", "type": "address"},
    {"indexed": false, "name": "newSpeed", "type": "uint256"}
  ], "name": "VenusSupplySpeedUpdated", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "vToken", "type": "address"},
    {"indexed": false, "name": "newSpeed", "type": "uint256"}
  ], "name": "VenusBorrowSpeedUpdated", "type": "event"},

  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "exchangeRateStored", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "supplyRatePerBlock", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "borrowRatePerBlock", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "supplyRatePerTimestamp", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "borrowRatePerTimestamp", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "reserveFactorMantissa", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "underlying", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getAllMarkets", "outputs": [{"type": "address[]"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "oracle", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "liquidationIncentiveMantissa", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "cToken", "type": "address"}], "name": "getUnderlyingPrice", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// legacyAccrueABIJSON is the three-field AccrueInterest emitted by early forks.
const legacyAccrueABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": false, "name": "interestAccumulated", "type": "uint256"},
    {"indexed": false, "name": "borrowIndex", "type": "uint256"},
    {"indexed": false, "name": "totalBorrows", "type": "uint256"}
  ], "name": "AccrueInterest", "type": "event"}
]`

const priceFeedABIJSON = `[
  {"inputs": [], "name": "latestAnswer", "outputs": [{"type": "int256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some early tokens (MKR, SAI) return bytes32 for name and symbol.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

type lazyABI struct {
	json   string
	once   sync.Once
	parsed abi.ABI
	err    error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.json))
	})
	return l.parsed, l.err
}

var (
	moneyMarketABI  = &lazyABI{json: moneyMarketABIJSON}
	legacyAccrueABI = &lazyABI{json: legacyAccrueABIJSON}
	priceFeedABI    = &lazyABI{json: priceFeedABIJSON}
	erc20StringABI  = &lazyABI{json: erc20ABIStringJSON}
	erc20Bytes32ABI = &lazyABI{json: erc20ABIBytes32JSON}
)

// MoneyMarketABI returns the parsed market, comptroller and oracle ABI.
func MoneyMarketABI() (abi.ABI, error) {
	return moneyMarketABI.get()
}

// LegacyAccrueABI returns the ABI holding the three-field AccrueInterest.
func LegacyAccrueABI() (abi.ABI, error) {
	return legacyAccrueABI.get()
}
