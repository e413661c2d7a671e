// Package sampling draws the N Monte-Carlo-style samples that make up a
// ProbabilisticForecast's predictive distribution. Distributions are a
// closed, named set built on gonum's distuv
// primitives, the same library family the teacher uses for portfolio
// statistics (internal/modules/optimization).
package sampling

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution names the closed set of sample-generating distributions.
type Distribution string

const (
	Normal          Distribution = "normal"
	LogNormal       Distribution = "lognormal"
	TruncatedNormal Distribution = "truncated_normal"
	SkewedNormal    Distribution = "skewed_normal"

	DefaultDistribution = Normal
)

// Params configures a draw. Bounds (Min/Max) only apply to
// TruncatedNormal and default to mean +/- 3*stddev when zero-valued.
// Skewness only applies to SkewedNormal and defaults to 0 (i.e. normal).
type Params struct {
	Distribution Distribution
	Mean         float64
	StdDev       float64
	N            int
	Min, Max     float64
	Skewness     float64
	Source       rand.Source
}

// Generate draws N samples per p.N, falling back to Normal for an
// unrecognized distribution name.
func Generate(p Params) ([]float64, error) {
	if p.N <= 0 {
		return nil, fmt.Errorf("sampling: N must be positive, got %d", p.N)
	}
	src := p.Source
	if src == nil {
		src = rand.NewSource(1)
	}

	switch p.Distribution {
	case LogNormal:
		return logNormalSamples(p, src), nil
	case TruncatedNormal:
		return truncatedNormalSamples(p, src), nil
	case SkewedNormal:
		return skewedNormalSamples(p, src), nil
	default:
		return normalSamples(p.Mean, p.StdDev, p.N, src), nil
	}
}

func normalSamples(mean, std float64, n int, src rand.Source) []float64 {
	dist := distuv.Normal{Mu: mean, Sigma: safeStdDev(std), Src: src}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// logNormalSamples translates a (point, stddev) pair into the
// (mu_log, sigma_log) parameterization of a lognormal distribution,
// clamping the point to a small positive floor before taking its log
// (lognormal samples must stay positive).
func logNormalSamples(p Params, src rand.Source) []float64 {
	point := math.Max(p.Mean, 0.01)
	cv := 0.0
	if point != 0 {
		cv = safeStdDev(p.StdDev) / point
	}
	sigmaLog := math.Sqrt(math.Log(1 + cv*cv))
	muLog := math.Log(point) - 0.5*sigmaLog*sigmaLog

	dist := distuv.LogNormal{Mu: muLog, Sigma: sigmaLog, Src: src}
	out := make([]float64, p.N)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// truncatedNormalSamples draws from Normal(mean, std) via rejection
// sampling within [min, max], defaulting bounds to mean +/- 3*std.
func truncatedNormalSamples(p Params, src rand.Source) []float64 {
	std := safeStdDev(p.StdDev)
	lo, hi := p.Min, p.Max
	if lo == 0 && hi == 0 {
		lo, hi = p.Mean-3*std, p.Mean+3*std
	}
	dist := distuv.Normal{Mu: p.Mean, Sigma: std, Src: src}
	out := make([]float64, p.N)
	for i := range out {
		v := dist.Rand()
		for attempts := 0; (v < lo || v > hi) && attempts < 100; attempts++ {
			v = dist.Rand()
		}
		out[i] = math.Min(math.Max(v, lo), hi)
	}
	return out
}

// skewedNormalSamples applies Azzalini's skew-normal construction on top
// of a standard normal draw: generate two independent standard normals
// (u0, u1) and combine them as z = delta*|u0| + sqrt(1-delta^2)*u1, with
// delta = Skewness/sqrt(1+Skewness^2).
func skewedNormalSamples(p Params, src rand.Source) []float64 {
	std := safeStdDev(p.StdDev)
	delta := p.Skewness / math.Sqrt(1+p.Skewness*p.Skewness)
	std0 := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	out := make([]float64, p.N)
	for i := range out {
		u0 := std0.Rand()
		u1 := std0.Rand()
		z := delta*math.Abs(u0) + math.Sqrt(1-delta*delta)*u1
		out[i] = p.Mean + std*z
	}
	return out
}

func safeStdDev(std float64) float64 {
	if std <= 0 {
		return 1e-9
	}
	return std
}
