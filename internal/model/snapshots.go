package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// SnapshotID keys a snapshot by (granularity, entity, bucket).
func SnapshotID(g Granularity, entityID string, bucket uint64) string {
	return fmt.Sprintf("%s-%s-%d", g, entityID, bucket)
}

// MarketSnapshot is a market's state at the end of a bucket plus the deltas
// accumulated within it.
type MarketSnapshot struct {
	ID          string      `json:"id"`
	Granularity Granularity `json:"granularity"`
	Market      string      `json:"market"`
	ProtocolID  string      `json:"protocol_id"`
	Bucket      uint64      `json:"bucket"`
	BlockNumber uint64      `json:"block_number"`
	Timestamp   uint64      `json:"timestamp"`

	TotalValueLockedUSD        decimal.Decimal   `json:"total_value_locked_usd"`
	TotalDepositBalanceUSD     decimal.Decimal   `json:"total_deposit_balance_usd"`
	TotalBorrowBalanceUSD      decimal.Decimal   `json:"total_borrow_balance_usd"`
	InputTokenBalance          *big.Int          `json:"input_token_balance"`
	OutputTokenSupply          *big.Int          `json:"output_token_supply"`
	ExchangeRate               decimal.Decimal   `json:"exchange_rate"`
	InputTokenPriceUSD         decimal.Decimal   `json:"input_token_price_usd"`
	OutputTokenPriceUSD        decimal.Decimal   `json:"output_token_price_usd"`
	SupplyRate                 decimal.Decimal   `json:"supply_rate"`
	BorrowRate                 decimal.Decimal   `json:"borrow_rate"`
	RewardTokenEmissionsAmount []*big.Int        `json:"reward_token_emissions_amount"`
	RewardTokenEmissionsUSD    []decimal.Decimal `json:"reward_token_emissions_usd"`

	Cumulative Cumulative `json:"cumulative"`
	Delta      Delta      `json:"delta"`
}

// FinancialsSnapshot is the protocol-wide view of a bucket, recomputed from
// the markets on every write.
type FinancialsSnapshot struct {
	ID          string      `json:"id"`
	Granularity Granularity `json:"granularity"`
	ProtocolID  string      `json:"protocol_id"`
	Bucket      uint64      `json:"bucket"`
	BlockNumber uint64      `json:"block_number"`
	Timestamp   uint64      `json:"timestamp"`

	TotalValueLockedUSD    decimal.Decimal `json:"total_value_locked_usd"`
	TotalDepositBalanceUSD decimal.Decimal `json:"total_deposit_balance_usd"`
	TotalBorrowBalanceUSD  decimal.Decimal `json:"total_borrow_balance_usd"`

	Cumulative Cumulative `json:"cumulative"`
	Delta      Delta      `json:"delta"`
}

// UsageSnapshot counts activity within a bucket.
type UsageSnapshot struct {
	ID          string      `json:"id"`
	Granularity Granularity `json:"granularity"`
	ProtocolID  string      `json:"protocol_id"`
	Bucket      uint64      `json:"bucket"`
	BlockNumber uint64      `json:"block_number"`
	Timestamp   uint64      `json:"timestamp"`

	ActiveUsers           uint64 `json:"active_users"`
	CumulativeUniqueUsers uint64 `json:"cumulative_unique_users"`
	DepositCount          uint64 `json:"deposit_count"`
	WithdrawCount         uint64 `json:"withdraw_count"`
	BorrowCount           uint64 `json:"borrow_count"`
	RepayCount            uint64 `json:"repay_count"`
	LiquidateCount        uint64 `json:"liquidate_count"`
	TransactionCount      uint64 `json:"transaction_count"`
}

// Cumulative holds monotonic running totals.
type Cumulative struct {
	DepositUSD             decimal.Decimal `json:"deposit_usd"`
	BorrowUSD              decimal.Decimal `json:"borrow_usd"`
	LiquidateUSD           decimal.Decimal `json:"liquidate_usd"`
	TotalRevenueUSD        decimal.Decimal `json:"total_revenue_usd"`
	ProtocolSideRevenueUSD decimal.Decimal `json:"protocol_side_revenue_usd"`
	SupplySideRevenueUSD   decimal.Decimal `json:"supply_side_revenue_usd"`
}

// Add returns the field-wise sum.
func (c Cumulative) Add(o Cumulative) Cumulative {
	return Cumulative{
		DepositUSD:             c.DepositUSD.Add(o.DepositUSD),
		BorrowUSD:              c.BorrowUSD.Add(o.BorrowUSD),
		LiquidateUSD:           c.LiquidateUSD.Add(o.LiquidateUSD),
		TotalRevenueUSD:        c.TotalRevenueUSD.Add(o.TotalRevenueUSD),
		ProtocolSideRevenueUSD: c.ProtocolSideRevenueUSD.Add(o.ProtocolSideRevenueUSD),
		SupplySideRevenueUSD:   c.SupplySideRevenueUSD.Add(o.SupplySideRevenueUSD),
	}
}

// Delta holds amounts accumulated within one bucket. A fresh bucket starts at zero.
type Delta struct {
	DepositUSD             decimal.Decimal `json:"deposit_usd"`
	WithdrawUSD            decimal.Decimal `json:"withdraw_usd"`
	BorrowUSD              decimal.Decimal `json:"borrow_usd"`
	RepayUSD               decimal.Decimal `json:"repay_usd"`
	LiquidateUSD           decimal.Decimal `json:"liquidate_usd"`
	TotalRevenueUSD        decimal.Decimal `json:"total_revenue_usd"`
	ProtocolSideRevenueUSD decimal.Decimal `json:"protocol_side_revenue_usd"`
	SupplySideRevenueUSD   decimal.Decimal `json:"supply_side_revenue_usd"`
}

// Add returns the field-wise sum.
func (d Delta) Add(o Delta) Delta {
	return Delta{
		DepositUSD:             d.DepositUSD.Add(o.DepositUSD),
		WithdrawUSD:            d.WithdrawUSD.Add(o.WithdrawUSD),
		BorrowUSD:              d.BorrowUSD.Add(o.BorrowUSD),
		RepayUSD:               d.RepayUSD.Add(o.RepayUSD),
		LiquidateUSD:           d.LiquidateUSD.Add(o.LiquidateUSD),
		TotalRevenueUSD:        d.TotalRevenueUSD.Add(o.TotalRevenueUSD),
		ProtocolSideRevenueUSD: d.ProtocolSideRevenueUSD.Add(o.ProtocolSideRevenueUSD),
		SupplySideRevenueUSD:   d.SupplySideRevenueUSD.Add(o.SupplySideRevenueUSD),
	}
}

// Cumulative extracts the market's running totals.
func (m *Market) Cumulative() Cumulative {
	return Cumulative{
		DepositUSD:             m.CumulativeDepositUSD,
		BorrowUSD:              m.CumulativeBorrowUSD,
		LiquidateUSD:           m.CumulativeLiquidateUSD,
		TotalRevenueUSD:        m.CumulativeTotalRevenueUSD,
		ProtocolSideRevenueUSD: m.CumulativeProtocolSideRevenueUSD,
		SupplySideRevenueUSD:   m.CumulativeSupplySideRevenueUSD,
	}
}

// Cumulative extracts the protocol's running totals.
func (p *Protocol) Cumulative() Cumulative {
	return Cumulative{
		DepositUSD:             p.CumulativeDepositUSD,
		BorrowUSD:              p.CumulativeBorrowUSD,
		LiquidateUSD:           p.CumulativeLiquidateUSD,
		TotalRevenueUSD:        p.CumulativeTotalRevenueUSD,
		ProtocolSideRevenueUSD: p.CumulativeProtocolSideRevenueUSD,
		SupplySideRevenueUSD:   p.CumulativeSupplySideRevenueUSD,
	}
}

// SetCumulative overwrites the protocol's running totals.
func (p *Protocol) SetCumulative(c Cumulative) {
	p.CumulativeDepositUSD = c.DepositUSD
	p.CumulativeBorrowUSD = c.BorrowUSD
	p.CumulativeLiquidateUSD = c.LiquidateUSD
	p.CumulativeTotalRevenueUSD = c.TotalRevenueUSD
	p.CumulativeProtocolSideRevenueUSD = c.ProtocolSideRevenueUSD
	p.CumulativeSupplySideRevenueUSD = c.SupplySideRevenueUSD
}
