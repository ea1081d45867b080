// Package util provides price arithmetic shared by the pricing and order
// building code.
package util

import (
	"fmt"
	"math"
)

// RoundToTick rounds x to the nearest multiple of tick. A non-positive tick
// leaves x unchanged.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// FormatLimit renders a per-contract price as a broker limit price string,
// rounded to the given tick with two decimal places.
func FormatLimit(x, tick float64) string {
	return fmt.Sprintf("%.2f", RoundToTick(x, tick))
}
