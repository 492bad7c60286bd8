// Package quant holds the small numeric helpers shared by the decision pipeline
package quant

import (
	"github.com/shopspring/decimal"
)

// Clamp bounds x into [lo, hi]
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ClampSignal bounds a signal into [-1, 1]
func ClampSignal(x float64) float64 {
	return Clamp(x, -1.0, 1.0)
}

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantity rounds a quantity to the specified decimals
func RoundQuantity(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Round(int32(qtyDecimals))
}

// ClampQuantity rounds to qtyDecimals and bounds into [min, max].
// Returns zero when the rounded quantity falls below min.
func ClampQuantity(qty, min, max decimal.Decimal, qtyDecimals int) decimal.Decimal {
	q := RoundQuantity(qty, qtyDecimals)
	if q.GreaterThan(max) {
		q = max
	}
	if q.LessThan(min) {
		return decimal.Zero
	}
	return q
}

// FromFloat converts a float price/quantity back to decimal at the given precision
func FromFloat(v float64, decimals int) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(int32(decimals))
}

// Ticks returns n price ticks at the given precision as a decimal offset
func Ticks(n int, priceDecimals int) decimal.Decimal {
	return decimal.New(int64(n), int32(-priceDecimals))
}
