// Package price converts fiat prices into QTC token amounts.
package price

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokensPerFiatUnit is the fixed rate: 1 USD = 10 QTC.
const TokensPerFiatUnit = 10

var rate = decimal.NewFromInt(TokensPerFiatUnit)

// ToTokenAmount returns round(fiat * 10), ties away from zero.
func ToTokenAmount(fiat decimal.Decimal) int64 {
	return fiat.Mul(rate).Round(0).IntPart()
}

// FromFloat is a convenience for prices decoded as float64.
func FromFloat(fiat float64) int64 {
	return ToTokenAmount(decimal.NewFromFloat(fiat))
}

// ToBaseUnits scales a whole token amount to the mint's smallest unit.
func ToBaseUnits(tokens int64, decimals uint8) uint64 {
	if tokens <= 0 {
		return 0
	}
	return uint64(decimal.NewFromInt(tokens).Shift(int32(decimals)).IntPart())
}

// FromBaseUnits converts base units back to a token amount.
func FromBaseUnits(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}
