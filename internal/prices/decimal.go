package prices

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// SignificantDigits is the precision kept for stored decimals, matching the
// BigDecimal precision subgraph consumers expect.
const SignificantDigits = 34

var (
	// Q192 is 2^192, the scale of a squared Q64.96 price.
	Q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

	half = decimal.New(5, -1)
)

// feeTierDecimals places fee tiers at 1e-6 (500 = 0.05%).
const feeTierDecimals = 6

// Normalize rounds d to SignificantDigits significant digits.
func Normalize(d decimal.Decimal) decimal.Decimal {
	n := d.NumDigits()
	if n <= SignificantDigits {
		return d
	}
	places := -d.Exponent() - int32(n-SignificantDigits)
	return d.Round(places)
}

// SafeDiv returns a / b, or zero when b is zero.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	// keep SignificantDigits of the quotient whatever the operands' magnitudes
	magnitude := (a.NumDigits() + int(a.Exponent())) - (b.NumDigits() + int(b.Exponent()))
	scale := SignificantDigits + 2 - magnitude
	if scale < 0 {
		scale = 0
	}
	return Normalize(a.DivRound(b, int32(scale)))
}

// ConvertTokenToDecimal scales a raw token amount by its decimals, exactly.
func ConvertTokenToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FeeAmount returns amount * feeTier / 1e6, feeTier being in hundredths of a bip.
func FeeAmount(amount decimal.Decimal, feeTier uint32) decimal.Decimal {
	return Normalize(amount.Mul(decimal.NewFromInt(int64(feeTier))).Shift(-feeTierDecimals))
}
