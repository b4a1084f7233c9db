// Package amount converts native-currency amounts between their fixed-point
// on-chain form (wei, *big.Int) and decimal text with 18 fractional digits.
package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of the native currency.
const Decimals = 18

// Zero returns a fresh zero amount.
func Zero() *big.Int {
	return new(big.Int)
}

// Parse converts decimal text (e.g. "0.05") into wei. It rejects empty input,
// exponents, non-finite values and more than Decimals fractional digits.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if strings.ContainsAny(s, "eE") {
		return nil, fmt.Errorf("amount %q must be plain decimal notation", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q is not a decimal number: %w", s, err)
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", s, Decimals)
	}
	return scaled.BigInt(), nil
}

// ParsePositive is Parse that additionally requires a strictly positive value.
func ParsePositive(s string) (*big.Int, error) {
	wei, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", s)
	}
	return wei, nil
}

// Format renders wei as decimal text without trailing zeros. A nil amount is "0".
func Format(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -Decimals).String()
}

// FormatFixed renders wei rounded to the given number of fractional digits,
// the way balances are shown on the dashboard (4 digits in the original UI).
func FormatFixed(wei *big.Int, places int32) string {
	if wei == nil {
		wei = Zero()
	}
	return decimal.NewFromBigInt(wei, -Decimals).StringFixed(places)
}

// Sum adds amounts exactly; nil entries count as zero.
func Sum(values ...*big.Int) *big.Int {
	total := Zero()
	for _, v := range values {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}

// OrZero returns v, or a fresh zero when v is nil.
func OrZero(v *big.Int) *big.Int {
	if v == nil {
		return Zero()
	}
	return v
}
