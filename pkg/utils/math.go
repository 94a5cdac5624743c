package utils

import "math"

// Clamp limits v to the closed range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Millis converts a nanosecond duration count to fractional milliseconds.
func Millis(nanos int64) float64 {
	return Round(float64(nanos)/1e6, 3)
}
