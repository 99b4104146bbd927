// Package util provides small shared numeric helpers.
package util

import "math"

// RoundToTick rounds x to the nearest multiple of tick, ties away from
// zero. A non-positive tick returns x unchanged.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}
