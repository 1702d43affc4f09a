package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// CalculateReturns converts a value series to day-over-day percentage returns.
// Returns[i] = (Value[i] - Value[i-1]) / Value[i-1]. Entries produced by a
// zero denominator or otherwise non-finite are discarded.
func CalculateReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		r := (values[i] - values[i-1]) / values[i-1]
		if !IsFinite(r) {
			continue
		}
		returns = append(returns, r)
	}

	return returns
}

// IsFinite reports whether f is neither NaN nor an infinity
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ZeroIfNotFinite replaces NaN/Inf with 0 so a single bad statistic
// never poisons the rest of a metrics row
func ZeroIfNotFinite(f float64) float64 {
	if !IsFinite(f) {
		return 0
	}
	return f
}

// Round rounds f to the given number of decimal places
func Round(f float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(f*shift) / shift
}
