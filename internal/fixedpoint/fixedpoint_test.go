package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHumanIsExact(t *testing.T) {
	amount, ok := new(big.Int).SetString("123456789012345678901", 10)
	require.True(t, ok)

	got := ToHuman(amount, 18)
	assert.Equal(t, "123.456789012345678901", got.String())
	assert.True(t, ToHuman(nil, 6).IsZero())
}

func TestToRawTruncatesTowardZero(t *testing.T) {
	assert.Equal(t, int64(12), ToRaw(decimal.RequireFromString("12.999")).Int64())
	assert.Equal(t, int64(-12), ToRaw(decimal.RequireFromString("-12.999")).Int64())
	assert.Equal(t, int64(0), ToRaw(decimal.RequireFromString("0.5")).Int64())
}

func TestScale(t *testing.T) {
	assert.True(t, Scale(6).Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, Scale(0).Equal(decimal.NewFromInt(1)))
}

func TestExchangeRateUsesDecimalsAdjustedMantissa(t *testing.T) {
	// USDC (6) against a cToken with 8 decimals: 0.02 USDC per cUSDC.
	raw := new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(14), nil))
	rate := ExchangeRate(raw, 6, 8)
	assert.Equal(t, "0.02", rate.String())
}

func TestUnderlyingBalanceRoundTrip(t *testing.T) {
	// outputSupply S with 8 decimals, input decimals 6, stored rate R.
	supply, ok := new(big.Int).SetString("4567891234567", 10)
	require.True(t, ok)
	rateRaw, ok := new(big.Int).SetString("212345678901234", 10)
	require.True(t, ok)

	balance := UnderlyingBalance(supply, rateRaw)

	// Human balance must equal S(human) * R / 10^(18+6-8), truncated to the
	// input token's precision.
	supplyHuman := ToHuman(supply, 8)
	expected := supplyHuman.Mul(decimal.NewFromBigInt(rateRaw, 0)).Shift(-(18 + 6 - 8))
	got := ToHuman(balance, 6)
	diff := expected.Sub(got).Abs()
	assert.True(t, diff.LessThan(Scale(-6)), "diff %s exceeds one unit", diff)
	assert.True(t, got.LessThanOrEqual(expected), "balance must truncate, not round")

	// Raw form is S * R / 10^18 truncated.
	want := new(big.Int).Mul(supply, rateRaw)
	want.Quo(want, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	assert.Equal(t, want.String(), balance.String())
}

func TestRateToAPY(t *testing.T) {
	// 1e9 per block over 2,102,400 blocks is 0.2102400 per year, 0.21024%.
	apy := RateToAPY(big.NewInt(1_000_000_000), 2_102_400)
	assert.Equal(t, "0.21024", apy.String())
	assert.True(t, RateToAPY(nil, 10).IsZero())
}

func TestMantissaToPercent(t *testing.T) {
	raw, ok := new(big.Int).SetString("80000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "8", MantissaToPercent(raw).String())
}

func TestParseBigInt(t *testing.T) {
	v, err := ParseBigInt("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Int64())

	_, err = ParseBigInt("12x")
	assert.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "1.500000", FormatAmount(big.NewInt(1500000), 6))
	require.Equal(t, "-0.05", FormatAmount(big.NewInt(-5), 2))
	require.Equal(t, "42", FormatAmount(big.NewInt(42), 0))
	require.Equal(t, "0", FormatAmount(nil, 18))
}
