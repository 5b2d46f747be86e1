package domain

import (
	"github.com/shopspring/decimal"

	dErrors "homechef/pkg/domain-errors"
)

// Money is a fixed-point amount in the marketplace currency. JSON encodes it
// as a string so totals never pick up float rounding.
type Money = decimal.Decimal

// ZeroMoney is the additive identity for totals.
var ZeroMoney = decimal.Zero

// ParseMoney accepts a decimal string and rejects negative amounts.
func ParseMoney(s string) (Money, error) {
	m, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney, dErrors.New(dErrors.CodeValidation, "price must be a decimal number")
	}
	if m.IsNegative() {
		return ZeroMoney, dErrors.New(dErrors.CodeValidation, "price must not be negative")
	}
	return m, nil
}

// LineTotal returns price * quantity.
func LineTotal(price Money, quantity int) Money {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
