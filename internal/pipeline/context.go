// Package pipeline implements the Pipeline Executor: one forecast cycle
// per target_date, composed of a Stage abstraction wrapped by
// Timed/Retried/Validated middleware, running the ingest -> features ->
// forecast -> validate -> store DAG with per-stage timeouts and fallback
// routing on failure.
package pipeline

import (
	"time"

	"github.com/rozsasarpi/gridcast/internal/featuretable"
	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/ingest"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/validation"
)

// Context carries the data produced by each stage of one forecast
// cycle, threaded through the pipeline by reference.
type Context struct {
	TargetDate  time.Time
	WindowStart time.Time // forecast-window start, i.e. target_date's 07:00 America/Chicago

	Bundle   ingest.Bundle
	Features *featuretable.Table

	Ensembles map[market.Product]*forecast.ForecastEnsemble

	ValidationResults map[market.Product]validation.Result

	IndexEntries map[market.Product]store.IndexEntry

	FailedStage string
	FailureErr  error
}

// NewContext starts a fresh pipeline Context for one target_date.
func NewContext(targetDate, windowStart time.Time) *Context {
	return &Context{
		TargetDate:        targetDate,
		WindowStart:       windowStart,
		Ensembles:         map[market.Product]*forecast.ForecastEnsemble{},
		ValidationResults: map[market.Product]validation.Result{},
		IndexEntries:      map[market.Product]store.IndexEntry{},
	}
}
