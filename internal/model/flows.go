package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Flow is an immutable deposit, withdraw, borrow or repay record.
type Flow struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	Hash        string          `json:"hash"`
	LogIndex    uint64          `json:"log_index"`
	ProtocolID  string          `json:"protocol_id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Account     string          `json:"account"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   uint64          `json:"timestamp"`
	Market      string          `json:"market"`
	Asset       string          `json:"asset"`
	Amount      *big.Int        `json:"amount"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
}

// Liquidate is the immutable record of a liquidation across two markets.
type Liquidate struct {
	ID             string          `json:"id"`
	Hash           string          `json:"hash"`
	LogIndex       uint64          `json:"log_index"`
	ProtocolID     string          `json:"protocol_id"`
	Liquidator     string          `json:"liquidator"`
	Liquidatee     string          `json:"liquidatee"`
	BlockNumber    uint64          `json:"block_number"`
	Timestamp      uint64          `json:"timestamp"`
	Market         string          `json:"market"`
	RepaidMarket   string          `json:"repaid_market"`
	Asset          string          `json:"asset"`
	Amount         *big.Int        `json:"amount"`
	AmountUSD      decimal.Decimal `json:"amount_usd"`
	RepayAmount    *big.Int        `json:"repay_amount"`
	RepayAmountUSD decimal.Decimal `json:"repay_amount_usd"`
	ProfitUSD      decimal.Decimal `json:"profit_usd"`
}
