package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of fractional digits money is stored with.
const MinorUnits = 2

var ErrAmountPrecision = errors.New("amount has more than 2 fractional digits")

// ToCents converts a decimal amount into integer minor units.
func ToCents(amount decimal.Decimal) (int64, error) {
	shifted := amount.Mul(decimal.New(1, MinorUnits))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	return shifted.IntPart(), nil
}

// FromCents converts integer minor units back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MinorUnits)
}
