package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ID normalizes an address into an entity id.
func ID(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// EventID builds the id of an append-only record.
func EventID(txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(txHash), logIndex)
}

// Protocol is the deployment-wide aggregate. Cumulative and balance fields are
// always the sum of the protocol's markets.
type Protocol struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	Network Network `json:"network"`

	// PriceOracle and LiquidationIncentive stay unset until a read succeeds.
	PriceOracle          string              `json:"price_oracle,omitempty"`
	LiquidationIncentive decimal.NullDecimal `json:"liquidation_incentive"`

	MarketIDs []string `json:"market_ids"`

	TotalValueLockedUSD              decimal.Decimal `json:"total_value_locked_usd"`
	TotalDepositBalanceUSD           decimal.Decimal `json:"total_deposit_balance_usd"`
	TotalBorrowBalanceUSD            decimal.Decimal `json:"total_borrow_balance_usd"`
	CumulativeDepositUSD             decimal.Decimal `json:"cumulative_deposit_usd"`
	CumulativeBorrowUSD              decimal.Decimal `json:"cumulative_borrow_usd"`
	CumulativeLiquidateUSD           decimal.Decimal `json:"cumulative_liquidate_usd"`
	CumulativeTotalRevenueUSD        decimal.Decimal `json:"cumulative_total_revenue_usd"`
	CumulativeProtocolSideRevenueUSD decimal.Decimal `json:"cumulative_protocol_side_revenue_usd"`
	CumulativeSupplySideRevenueUSD   decimal.Decimal `json:"cumulative_supply_side_revenue_usd"`
	CumulativeUniqueUsers            uint64          `json:"cumulative_unique_users"`
}

// HasMarket reports whether the market id is registered.
func (p *Protocol) HasMarket(id string) bool {
	for _, existing := range p.MarketIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// Token is an ERC20 (or native asset) identity with its last known price.
type Token struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Symbol               string          `json:"symbol"`
	Decimals             uint8           `json:"decimals"`
	LastPriceUSD         decimal.Decimal `json:"last_price_usd"`
	LastPriceBlockNumber uint64          `json:"last_price_block_number"`
}

// Market is one money-market contract. InputToken, OutputToken and the
// decimals captured at listing never change after creation.
type Market struct {
	ID                  string `json:"id"`
	ProtocolID          string `json:"protocol_id"`
	Name                string `json:"name"`
	InputToken          string `json:"input_token"`
	OutputToken         string `json:"output_token"`
	InputTokenDecimals  uint8  `json:"input_token_decimals"`
	OutputTokenDecimals uint8  `json:"output_token_decimals"`
	CreatedBlockNumber  uint64 `json:"created_block_number"`
	CreatedTimestamp    uint64 `json:"created_timestamp"`

	IsActive           bool            `json:"is_active"`
	CanBorrowFrom      bool            `json:"can_borrow_from"`
	CanUseAsCollateral bool            `json:"can_use_as_collateral"`
	CollateralFactor   decimal.Decimal `json:"collateral_factor"`
	LiquidationPenalty decimal.Decimal `json:"liquidation_penalty"`
	ReserveFactor      decimal.Decimal `json:"reserve_factor"`

	InputTokenBalance *big.Int `json:"input_token_balance"`
	OutputTokenSupply *big.Int `json:"output_token_supply"`
	BorrowBalance     *big.Int `json:"borrow_balance"`

	ExchangeRateRaw     *big.Int        `json:"exchange_rate_raw"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	InputTokenPriceUSD  decimal.Decimal `json:"input_token_price_usd"`
	OutputTokenPriceUSD decimal.Decimal `json:"output_token_price_usd"`

	TotalValueLockedUSD    decimal.Decimal `json:"total_value_locked_usd"`
	TotalDepositBalanceUSD decimal.Decimal `json:"total_deposit_balance_usd"`
	TotalBorrowBalanceUSD  decimal.Decimal `json:"total_borrow_balance_usd"`

	CumulativeDepositUSD             decimal.Decimal `json:"cumulative_deposit_usd"`
	CumulativeBorrowUSD              decimal.Decimal `json:"cumulative_borrow_usd"`
	CumulativeLiquidateUSD           decimal.Decimal `json:"cumulative_liquidate_usd"`
	CumulativeTotalRevenueUSD        decimal.Decimal `json:"cumulative_total_revenue_usd"`
	CumulativeProtocolSideRevenueUSD decimal.Decimal `json:"cumulative_protocol_side_revenue_usd"`
	CumulativeSupplySideRevenueUSD   decimal.Decimal `json:"cumulative_supply_side_revenue_usd"`

	Rates []string `json:"rates"`

	// RewardTokens is sorted by id; the emission slices are parallel to it.
	RewardTokens               []string          `json:"reward_tokens"`
	RewardTokenEmissionsAmount []*big.Int        `json:"reward_token_emissions_amount"`
	RewardTokenEmissionsUSD    []decimal.Decimal `json:"reward_token_emissions_usd"`
	// RewardSpeeds are raw amounts per rate unit, parallel to RewardTokens.
	RewardSpeeds []*big.Int `json:"reward_speeds"`

	LastAccrualBlock uint64 `json:"last_accrual_block"`
}

// NewMarket returns a market with zeroed balances.
func NewMarket(id string) *Market {
	return &Market{
		ID:                id,
		InputTokenBalance: big.NewInt(0),
		OutputTokenSupply: big.NewInt(0),
		BorrowBalance:     big.NewInt(0),
		ExchangeRateRaw:   big.NewInt(0),
	}
}

// InterestRate holds the current APY (percent) for one side of a market.
type InterestRate struct {
	ID     string           `json:"id"`
	Rate   decimal.Decimal  `json:"rate"`
	Side   InterestRateSide `json:"side"`
	Type   InterestRateType `json:"type"`
	Market string           `json:"market"`
}

// InterestRateID keys a rate by (side, type, market).
func InterestRateID(side InterestRateSide, rateType InterestRateType, market string) string {
	return fmt.Sprintf("%s-%s-%s", side, rateType, market)
}

// RewardToken links a token to the activity it rewards.
type RewardToken struct {
	ID    string          `json:"id"`
	Token string          `json:"token"`
	Type  RewardTokenType `json:"type"`
}

// RewardTokenID keys a reward token by (type, token).
func RewardTokenID(rewardType RewardTokenType, token string) string {
	return fmt.Sprintf("%s-%s", rewardType, ID(token))
}

// Account is created on the first observed action of an address.
type Account struct {
	ID               string `json:"id"`
	FirstBlockNumber uint64 `json:"first_block_number"`
	FirstTimestamp   uint64 `json:"first_timestamp"`
}

// ActiveAccount marks an address as active within one bucket.
type ActiveAccount struct {
	ID          string      `json:"id"`
	Account     string      `json:"account"`
	Granularity Granularity `json:"granularity"`
	Bucket      uint64      `json:"bucket"`
}

// ActiveAccountID keys an active account by (granularity, account, bucket).
func ActiveAccountID(g Granularity, account string, bucket uint64) string {
	return fmt.Sprintf("%s-%s-%d", g, ID(account), bucket)
}
