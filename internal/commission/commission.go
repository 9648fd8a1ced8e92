// Package commission computes the trading fee charged on executed trades.
// The fee is a flat 1.5% of trade volume and is paid by the buyer only.
package commission

import (
	"github.com/shopspring/decimal"

	"github.com/tradecore/exchange-api/internal/money"
)

var rate = money.MustParse("0.015")

// Calculate returns the commission for the given USD volume.
func Calculate(volume decimal.Decimal) decimal.Decimal {
	return money.Mul(volume, rate)
}

// NetAmount returns the volume minus commission.
func NetAmount(volume decimal.Decimal) decimal.Decimal {
	return money.Sub(volume, Calculate(volume))
}

// TotalWithCommission returns the volume plus commission. Buy orders
// reserve this total when they are placed.
func TotalWithCommission(volume decimal.Decimal) decimal.Decimal {
	return money.Add(volume, Calculate(volume))
}

// Rate returns the commission rate as a decimal fraction.
func Rate() decimal.Decimal {
	return rate
}

// RatePercent returns the commission rate as a display percentage.
func RatePercent() decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(100)).Truncate(2)
}
