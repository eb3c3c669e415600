// Package book tracks order books on the producer side, compresses them
// into minimal deltas, and rebuilds them on the consumer side.
package book

import "math"

// priceScale fixes eight decimal places for quantized price keys.
// Floating-point prices are never used as map keys directly.
const priceScale = 1e8

// Quantize converts a price into its fixed-precision integer key.
func Quantize(price float64) int64 {
	return int64(math.Round(price * priceScale))
}

// Unquantize converts a price key back to a float price.
func Unquantize(key int64) float64 {
	return float64(key) / priceScale
}
