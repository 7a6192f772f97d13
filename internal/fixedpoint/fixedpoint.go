// Package fixedpoint converts between raw on-chain integers and decimal values.
// All arithmetic is arbitrary-precision; binary floats are never used.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MantissaDecimals is the scale of Compound-style mantissa values (1e18 == 1.0).
const MantissaDecimals = 18

var hundred = decimal.NewFromInt(100)

// Scale returns 10^n.
func Scale(n int) decimal.Decimal {
	return decimal.New(1, int32(n))
}

// ToHuman converts a raw integer amount into token units. The result is exact.
func ToHuman(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ToRaw converts a decimal into an integer by truncating toward zero. The
// fractional remainder is dropped, not rounded.
func ToRaw(value decimal.Decimal) *big.Int {
	return value.Truncate(0).BigInt()
}

// FromMantissa converts a mantissa-scaled integer into a plain decimal.
func FromMantissa(raw *big.Int) decimal.Decimal {
	return ToHuman(raw, MantissaDecimals)
}

// ExchangeRate converts a stored exchange rate into input tokens per output
// token: raw / 10^(mantissa + inputDecimals - outputDecimals).
func ExchangeRate(raw *big.Int, inputDecimals, outputDecimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	exp := MantissaDecimals + int32(inputDecimals) - int32(outputDecimals)
	return decimal.NewFromBigInt(raw, -exp)
}

// UnderlyingBalance returns supply * rate / 10^mantissa, truncated toward zero.
// Both inputs are raw; the result is in input-token base units.
func UnderlyingBalance(outputSupply, exchangeRateRaw *big.Int) *big.Int {
	if outputSupply == nil || exchangeRateRaw == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(outputSupply, exchangeRateRaw)
	return product.Quo(product, pow10(MantissaDecimals))
}

// RateToAPY converts a per-unit rate mantissa into a percentage:
// rate * unitsPerYear / 10^mantissa * 100.
func RateToAPY(ratePerUnit *big.Int, unitsPerYear uint64) decimal.Decimal {
	if ratePerUnit == nil {
		return decimal.Zero
	}
	return FromMantissa(ratePerUnit).
		Mul(decimal.NewFromInt(int64(unitsPerYear))).
		Mul(hundred)
}

// MantissaToPercent converts a mantissa fraction (5e16 == 5%) into a percentage.
func MantissaToPercent(raw *big.Int) decimal.Decimal {
	return FromMantissa(raw).Mul(hundred)
}

// ParseBigInt parses a base-10 integer string. Empty input is zero.
func ParseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// FormatAmount renders a raw amount in token units with exactly `decimals`
// fractional digits.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	return ToHuman(value, decimals).StringFixed(int32(decimals))
}
