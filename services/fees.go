package services

import "github.com/shopspring/decimal"

var (
	feeLow  = decimal.RequireFromString("7.5")
	feeMid  = decimal.RequireFromString("5.0")
	feeHigh = decimal.RequireFromString("2.5")

	priceLowCap = decimal.NewFromInt(20000)
	priceMidCap = decimal.NewFromInt(100000)
	hundred     = decimal.NewFromInt(100)
)

// PlatformFeePercent returns the fee percentage for a ticket price. Cheaper
// tiers carry a higher fee.
func PlatformFeePercent(price decimal.Decimal) decimal.Decimal {
	switch {
	case price.LessThanOrEqual(priceLowCap):
		return feeLow
	case price.LessThanOrEqual(priceMidCap):
		return feeMid
	default:
		return feeHigh
	}
}

// OrganizerShare returns the portion of amount credited to the organizer
// after the platform fee for the given price tier.
func OrganizerShare(price, amount decimal.Decimal) decimal.Decimal {
	keep := hundred.Sub(PlatformFeePercent(price))
	return amount.Mul(keep).Div(hundred)
}
