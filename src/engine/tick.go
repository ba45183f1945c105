package engine

import "math"

// TickPrecision is the fixed-point scale for prices: one currency unit is
// TickPrecision ticks. All matching arithmetic is on integer ticks; floats
// only appear at the market-data boundary.
const TickPrecision = 100

// Sentinel limit prices for market orders. A market buy crosses every ask,
// a market sell crosses every bid.
const (
	MarketBuyTick  int64 = math.MaxInt64
	MarketSellTick int64 = math.MinInt64
)

// PriceFromTick converts an integer tick to a display price.
func PriceFromTick(tick int64) float64 {
	return float64(tick) / float64(TickPrecision)
}

// TickFromPrice converts a display price to the nearest tick.
func TickFromPrice(price float64) int64 {
	return int64(math.Round(price * float64(TickPrecision)))
}
