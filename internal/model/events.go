package model

// Event names emitted by money-market and comptroller contracts.
const (
	EventNameMarketListed            = "MarketListed"
	EventNameAccrueInterest          = "AccrueInterest"
	EventNameMint                    = "Mint"
	EventNameRedeem                  = "Redeem"
	EventNameBorrow                  = "Borrow"
	EventNameRepayBorrow             = "RepayBorrow"
	EventNameLiquidateBorrow         = "LiquidateBorrow"
	EventNameNewReserveFactor        = "NewReserveFactor"
	EventNameNewCollateralFactor     = "NewCollateralFactor"
	EventNameNewLiquidationIncentive = "NewLiquidationIncentive"
	EventNameNewPriceOracle          = "NewPriceOracle"
	EventNameActionPaused            = "ActionPaused"
	EventNameRewardSpeedUpdated      = "RewardSpeedUpdated"
)

// MarketListedData is the decoded MarketListed payload.
type MarketListedData struct {
	Market string `json:"market"`
}

// AccrueInterestData is the decoded AccrueInterest payload. CashPrior is empty
// for forks that emit the three-field variant.
type AccrueInterestData struct {
	CashPrior           string `json:"cash_prior,omitempty"`
	InterestAccumulated string `json:"interest_accumulated"`
	BorrowIndex         string `json:"borrow_index"`
	TotalBorrows        string `json:"total_borrows"`
}

// MintData is the decoded Mint payload.
type MintData struct {
	Minter     string `json:"minter"`
	MintAmount string `json:"mint_amount"`
	MintTokens string `json:"mint_tokens"`
}

// RedeemData is the decoded Redeem payload.
type RedeemData struct {
	Redeemer     string `json:"redeemer"`
	RedeemAmount string `json:"redeem_amount"`
	RedeemTokens string `json:"redeem_tokens"`
}

// BorrowData is the decoded Borrow payload.
type BorrowData struct {
	Borrower       string `json:"borrower"`
	BorrowAmount   string `json:"borrow_amount"`
	AccountBorrows string `json:"account_borrows"`
	TotalBorrows   string `json:"total_borrows"`
}

// RepayBorrowData is the decoded RepayBorrow payload.
type RepayBorrowData struct {
	Payer          string `json:"payer"`
	Borrower       string `json:"borrower"`
	RepayAmount    string `json:"repay_amount"`
	AccountBorrows string `json:"account_borrows"`
	TotalBorrows   string `json:"total_borrows"`
}

// LiquidateBorrowData is the decoded LiquidateBorrow payload.
type LiquidateBorrowData struct {
	Liquidator       string `json:"liquidator"`
	Borrower         string `json:"borrower"`
	RepayAmount      string `json:"repay_amount"`
	CollateralMarket string `json:"collateral_market"`
	SeizeTokens      string `json:"seize_tokens"`
}

// NewReserveFactorData is the decoded NewReserveFactor payload.
type NewReserveFactorData struct {
	OldReserveFactorMantissa string `json:"old_reserve_factor_mantissa"`
	NewReserveFactorMantissa string `json:"new_reserve_factor_mantissa"`
}

// NewCollateralFactorData is the decoded NewCollateralFactor payload.
type NewCollateralFactorData struct {
	Market                      string `json:"market"`
	OldCollateralFactorMantissa string `json:"old_collateral_factor_mantissa"`
	NewCollateralFactorMantissa string `json:"new_collateral_factor_mantissa"`
}

// NewLiquidationIncentiveData is the decoded NewLiquidationIncentive payload.
type NewLiquidationIncentiveData struct {
	OldLiquidationIncentiveMantissa string `json:"old_liquidation_incentive_mantissa"`
	NewLiquidationIncentiveMantissa string `json:"new_liquidation_incentive_mantissa"`
}

// NewPriceOracleData is the decoded NewPriceOracle payload.
type NewPriceOracleData struct {
	OldPriceOracle string `json:"old_price_oracle"`
	NewPriceOracle string `json:"new_price_oracle"`
}

// ActionPausedData is the decoded market-level ActionPaused payload.
type ActionPausedData struct {
	Market     string `json:"market"`
	Action     string `json:"action"`
	PauseState bool   `json:"pause_state"`
}

// RewardSpeedUpdatedData covers the combined and per-side reward speed events.
// Side is "supply", "borrow" or "both".
type RewardSpeedUpdatedData struct {
	Market   string `json:"market"`
	NewSpeed string `json:"new_speed"`
	Side     string `json:"side"`
}

const (
	RewardSideSupply = "supply"
	RewardSideBorrow = "borrow"
	RewardSideBoth   = "both"
)
