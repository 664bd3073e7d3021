package utils

import (
	"math"
)

// Clamp limits a value between min and max
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// RoundTo rounds a float to specified decimal places
func RoundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

// IsFinite reports whether v is neither NaN nor ±Inf
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// PercentChange returns (from-to)/|from|*100 clamped to ±limit.
// Zero, NaN or infinite inputs yield 0.
func PercentChange(from, to, limit float64) float64 {
	if !IsFinite(from) || !IsFinite(to) || math.Abs(from) < 1e-12 {
		return 0
	}
	return Clamp((from-to)/math.Abs(from)*100, -limit, limit)
}
