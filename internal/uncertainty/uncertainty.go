// Package uncertainty derives the (mean, stddev) parameters of a
// forecast's predictive distribution from its point prediction and
// recent residual/error history. Methods are a closed, named set rather
// than a registry of arbitrary callables; an unknown method name
// degrades to the default with a logged warning instead of raising.
package uncertainty

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/rozsasarpi/gridcast/internal/market"
)

// Method names the closed set of uncertainty-derivation strategies.
type Method string

const (
	HistoricalResiduals  Method = "historical_residuals"
	PercentageOfForecast Method = "percentage_of_forecast"
	FixedValue           Method = "fixed_value"
	Adaptive             Method = "adaptive"

	// DefaultMethod is used whenever an unknown method name is requested.
	DefaultMethod = HistoricalResiduals
)

// Result is the derived predictive-distribution parameters, before the
// product adjustment factor is applied.
type Result struct {
	Mean          float64
	StdDev        float64
	UsedFallback  bool // true if degraded to the default method
	RequestedName Method
}

// Input carries everything a derivation method needs. PercentErrors and
// Residuals are historical, chronologically ordered (oldest first); both
// may be empty (no history yet for this product/hour).
type Input struct {
	Product       market.Product
	Point         float64
	Residuals     []float64 // point-space residuals: actual - predicted
	PercentErrors []float64 // (actual-predicted)/actual, when available
}

// Derive computes the (mean, stddev) pair for the requested method,
// applying the product's adjustment factor to the resulting stddev.
func Derive(method Method, in Input) Result {
	used := method
	fallback := false
	if !isKnown(method) {
		used = DefaultMethod
		fallback = true
	}

	var mean, std float64
	switch used {
	case PercentageOfForecast:
		mean, std = percentageOfForecast(in)
	case FixedValue:
		mean, std = fixedValue(in)
	case Adaptive:
		mean, std = adaptive(in)
	default:
		mean, std = historicalResiduals(in)
	}

	std *= market.AdjustmentFactor(in.Product)

	return Result{
		Mean:          mean,
		StdDev:        std,
		UsedFallback:  fallback,
		RequestedName: method,
	}
}

func isKnown(m Method) bool {
	switch m {
	case HistoricalResiduals, PercentageOfForecast, FixedValue, Adaptive:
		return true
	default:
		return false
	}
}

func historicalResiduals(in Input) (mean, std float64) {
	if len(in.Residuals) == 0 {
		return in.Point, 0.10 * math.Abs(in.Point)
	}
	residMean := stat.Mean(in.Residuals, nil)
	residStd := stat.StdDev(in.Residuals, nil)
	floor := 0.05 * math.Abs(in.Point)
	return in.Point + residMean, math.Max(residStd, floor)
}

func percentageOfForecast(in Input) (mean, std float64) {
	if len(in.PercentErrors) == 0 {
		return in.Point, 0.05 * math.Abs(in.Point)
	}
	pctMean := stat.Mean(in.PercentErrors, nil)
	pctStd := stat.StdDev(in.PercentErrors, nil)
	return in.Point * (1 + pctMean), math.Abs(in.Point) * math.Max(pctStd, 0.05)
}

func fixedValue(in Input) (mean, std float64) {
	return in.Point, market.FixedStdDev(in.Product)
}

// adaptive derives mean/std from recent residuals, then scales the
// stddev up (never down) when the magnitude of the most recent 3 errors
// exceeds that of the prior 3 — a simple trend-following inflation of
// uncertainty during regime shifts.
func adaptive(in Input) (mean, std float64) {
	mean, std = historicalResiduals(in)
	if len(in.Residuals) < 6 {
		return mean, std
	}
	n := len(in.Residuals)
	last3 := meanAbs(in.Residuals[n-3:])
	prior3 := meanAbs(in.Residuals[n-6 : n-3])
	if prior3 == 0 {
		return mean, std
	}
	trend := last3/prior3 - 1
	if trend > 0 {
		std *= 1 + trend
	}
	return mean, std
}

func meanAbs(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Abs(x)
	}
	return sum / float64(len(xs))
}
