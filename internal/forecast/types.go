package forecast

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rozsasarpi/gridcast/internal/market"
)

// SampleCount is the configured number of Monte-Carlo samples per
// forecast hour.
const SampleCount = 100

// Stats are the derived descriptive statistics cached on a
// ProbabilisticForecast when NewProbabilisticForecast builds it (or, for
// a forecast built otherwise, on the first Stats call).
type Stats struct {
	Mean     float64
	Median   float64
	StdDev   float64
	Min      float64
	Max      float64
	Skew     float64
	Kurtosis float64
}

// ProbabilisticForecast is a single (timestamp, product) forecast: a
// point prediction plus exactly SampleCount Monte-Carlo samples.
type ProbabilisticForecast struct {
	Timestamp           time.Time
	Product             market.Product
	PointForecast       float64
	Samples             []float64
	GenerationTimestamp time.Time
	IsFallback          bool

	stats     Stats
	statsDone bool
}

// NewProbabilisticForecast validates and constructs a forecast, enforcing
// the sample-count and finiteness invariants up front so that no
// downstream code ever observes a malformed one.
func NewProbabilisticForecast(ts time.Time, product market.Product, point float64, samples []float64, genTS time.Time, isFallback bool) (*ProbabilisticForecast, error) {
	if len(samples) != SampleCount {
		return nil, fmt.Errorf("forecast: expected %d samples, got %d", SampleCount, len(samples))
	}
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("forecast: sample %d is not finite (%v)", i, s)
		}
	}
	if product.IsAncillary() {
		for i, s := range samples {
			if s < 0 {
				return nil, fmt.Errorf("forecast: ancillary product %s sample %d is negative (%v)", product, i, s)
			}
		}
	}

	f := &ProbabilisticForecast{
		Timestamp:           ts,
		Product:             product,
		PointForecast:       point,
		Samples:             append([]float64(nil), samples...),
		GenerationTimestamp: genTS,
		IsFallback:          isFallback,
	}
	f.computeStats()
	return f, nil
}

func (f *ProbabilisticForecast) computeStats() {
	if f.statsDone {
		return
	}
	sorted := append([]float64(nil), f.Samples...)
	sort.Float64s(sorted)

	mean := stat.Mean(sorted, nil)
	std := stat.StdDev(sorted, nil)

	f.stats = Stats{
		Mean:     mean,
		Median:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		StdDev:   std,
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		Skew:     stat.Skew(f.Samples, nil),
		Kurtosis: stat.ExKurtosis(f.Samples, nil),
	}
	f.statsDone = true
}

// Stats returns the cached descriptive statistics, computing them on
// first access if the forecast was constructed by means other than
// NewProbabilisticForecast (e.g. deserialized from storage).
func (f *ProbabilisticForecast) Stats() Stats {
	f.computeStats()
	return f.stats
}

// ForecastEnsemble is 72 consecutive hourly ProbabilisticForecasts for a
// single product, covering [StartTime, EndTime).
type ForecastEnsemble struct {
	Product             market.Product
	StartTime           time.Time
	EndTime             time.Time
	Forecasts           []*ProbabilisticForecast
	GenerationTimestamp time.Time
}

// HorizonHours is the fixed 72-hour forecast horizon.
const HorizonHours = 72

// NewForecastEnsemble assembles and validates an ensemble: every child's
// product must match, every timestamp must fall in [start, start+72h),
// and there must be exactly HorizonHours children.
func NewForecastEnsemble(product market.Product, start time.Time, forecasts []*ProbabilisticForecast, genTS time.Time) (*ForecastEnsemble, error) {
	if len(forecasts) != HorizonHours {
		return nil, fmt.Errorf("forecast: ensemble for %s has %d forecasts, want %d", product, len(forecasts), HorizonHours)
	}
	end := start.Add(HorizonHours * time.Hour)
	for _, f := range forecasts {
		if f.Product != product {
			return nil, fmt.Errorf("forecast: ensemble product mismatch: ensemble=%s child=%s", product, f.Product)
		}
		if f.Timestamp.Before(start) || !f.Timestamp.Before(end) {
			return nil, fmt.Errorf("forecast: child timestamp %s outside ensemble window [%s,%s)", f.Timestamp, start, end)
		}
	}
	return &ForecastEnsemble{
		Product:             product,
		StartTime:           start,
		EndTime:             end,
		Forecasts:           forecasts,
		GenerationTimestamp: genTS,
	}, nil
}

// IsFallback is true iff any child forecast is a fallback.
func (e *ForecastEnsemble) IsFallback() bool {
	for _, f := range e.Forecasts {
		if f.IsFallback {
			return true
		}
	}
	return false
}
