// Package fallback implements the Fallback Engine: invoked whenever
// ingest/features/forecast/validate fails, it finds the most recent
// non-fallback prior artifact, or synthesizes a cold-start
// constant-value artifact, re-stamps it for the target date, and
// writes it back through the Forecast Store.
package fallback

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store"
)

// Engine synthesizes or rehomes fallback ensembles.
type Engine struct {
	Store *store.Store
	Now   func() time.Time
	Log   zerolog.Logger
}

// NewEngine wires a fallback Engine against a Forecast Store.
func NewEngine(s *store.Store, log zerolog.Logger) *Engine {
	return &Engine{
		Store: s,
		Now:   time.Now,
		Log:   log.With().Str("component", "fallback_engine").Logger(),
	}
}

// Reason describes why the fallback engine was invoked: the target
// date, the cause, and which stage failed.
type Reason struct {
	TargetDate  time.Time
	FailedStage string
	Cause       error
}

// Generate produces and persists a fallback ensemble for product
// covering target_date's 72-hour forecast window.
func (e *Engine) Generate(product market.Product, reason Reason, windowStart time.Time) (*forecast.ForecastEnsemble, error) {
	e.Log.Warn().
		Str("product", string(product)).
		Str("failed_stage", reason.FailedStage).
		Err(reason.Cause).
		Msg("invoking fallback engine")

	ens, err := e.findPrior(product, reason.TargetDate)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	if ens == nil {
		ens, err = e.coldStart(product, windowStart)
		if err != nil {
			return nil, fmt.Errorf("fallback: cold start: %w", err)
		}
	} else {
		ens, err = e.restamp(ens, windowStart)
		if err != nil {
			return nil, fmt.Errorf("fallback: restamp: %w", err)
		}
	}

	if _, err := e.Store.Put(ens); err != nil {
		return nil, fmt.Errorf("fallback: store write failed, no further fallback available: %w", err)
	}
	return ens, nil
}

// findPrior locates the most recent prior artifact with is_fallback =
// false whose start_time is before target_date.
func (e *Engine) findPrior(product market.Product, targetDate time.Time) (*forecast.ForecastEnsemble, error) {
	var best *store.IndexEntry
	for _, entry := range e.Store.Index.Entries() {
		entry := entry
		if entry.Product != product || entry.IsFallback {
			continue
		}
		if !entry.StartTime.Before(targetDate) {
			continue
		}
		if best == nil || entry.StartTime.After(best.StartTime) {
			best = &entry
		}
	}
	if best == nil {
		return nil, nil
	}
	return e.Store.ReadEntry(*best)
}

// coldStart synthesizes a constant-value fallback ensemble from the
// product's default price, with zero-variance samples, guaranteeing
// there is always an artifact to serve even with no prior history.
func (e *Engine) coldStart(product market.Product, windowStart time.Time) (*forecast.ForecastEnsemble, error) {
	price := market.DefaultFallbackPrice(product)
	now := e.Now()
	samples := make([]float64, forecast.SampleCount)
	for i := range samples {
		samples[i] = price
	}

	forecasts := make([]*forecast.ProbabilisticForecast, forecast.HorizonHours)
	for i := range forecasts {
		pf, err := forecast.NewProbabilisticForecast(windowStart.Add(time.Duration(i)*time.Hour), product, price, samples, now, true)
		if err != nil {
			return nil, err
		}
		forecasts[i] = pf
	}
	return forecast.NewForecastEnsemble(product, windowStart, forecasts, now)
}

// restamp re-homes a prior ensemble's 72 hourly forecasts onto
// windowStart, marking every child (and the ensemble) is_fallback, and
// setting generation_timestamp to now.
func (e *Engine) restamp(prior *forecast.ForecastEnsemble, windowStart time.Time) (*forecast.ForecastEnsemble, error) {
	now := e.Now()
	forecasts := make([]*forecast.ProbabilisticForecast, len(prior.Forecasts))
	for i, f := range prior.Forecasts {
		pf, err := forecast.NewProbabilisticForecast(windowStart.Add(time.Duration(i)*time.Hour), f.Product, f.PointForecast, f.Samples, now, true)
		if err != nil {
			return nil, err
		}
		forecasts[i] = pf
	}
	return forecast.NewForecastEnsemble(prior.Product, windowStart, forecasts, now)
}
