package formulas

import (
	"gonum.org/v1/gonum/stat"
)

// CalculateAlphaBeta regresses portfolio returns against benchmark returns.
//
//	portfolio_return = alpha + beta × benchmark_return
//
// Both series must be aligned (same dates, same length). Requires at least
// two points; returns nil otherwise. A flat benchmark (zero variance) has no
// meaningful regression and also returns nil.
func CalculateAlphaBeta(portfolioReturns, benchmarkReturns []float64) (alpha, beta *float64) {
	if len(portfolioReturns) < 2 || len(portfolioReturns) != len(benchmarkReturns) {
		return nil, nil
	}

	if stat.Variance(benchmarkReturns, nil) == 0 {
		return nil, nil
	}

	a, b := stat.LinearRegression(benchmarkReturns, portfolioReturns, nil, false)
	if !IsFinite(a) || !IsFinite(b) {
		return nil, nil
	}

	return &a, &b
}
