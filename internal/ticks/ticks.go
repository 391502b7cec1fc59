// Package ticks converts between tick indices and prices for
// exponentially spaced liquidity ranges.
package ticks

import "math"

// Base is the tick spacing factor: one tick moves price by 0.01%.
const Base = 1.0001

// TickToPrice returns the price at a tick index, Base^tick.
func TickToPrice(tick int) float64 {
	return math.Pow(Base, float64(tick))
}

// PriceToTick returns the tick whose range contains the given price,
// floor(log(price) / log(Base)). It is the inverse of TickToPrice except
// where floating-point rounding lands exactly on a tick boundary; that
// imprecision is accepted, not corrected.
func PriceToTick(price float64) int {
	return int(math.Floor(math.Log(price) / math.Log(Base)))
}
