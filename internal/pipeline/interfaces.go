package pipeline

import (
	"context"
	"time"

	"github.com/rozsasarpi/gridcast/internal/featuretable"
	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/ingest"
)

// Ingester abstracts the ingest stage's collaborator so the pipeline
// depends on a small interface rather than the concrete ingest.Client,
// matching the teacher's pattern of passing interfaces (not clients)
// into its processors.
type Ingester interface {
	FetchBundle(ctx context.Context) (ingest.Bundle, error)
}

// FeatureBuilder abstracts the external feature-engineering collaborator:
// it turns one ingest Bundle into the feature table the Forecasting
// Engine projects against.
type FeatureBuilder interface {
	Build(ctx context.Context, bundle ingest.Bundle, windowStart time.Time) (*featuretable.Table, error)
}

// Residuals is forecast.HistoricalResiduals, re-spelled here so callers
// wiring an Executor don't need to import the forecast package just for
// this one interface name.
type Residuals = forecast.HistoricalResiduals

// EventPublisher abstracts the Query API's SSE broadcaster so the
// pipeline can announce cycle lifecycle events without importing
// internal/api (which itself imports internal/scheduler ->
// internal/pipeline; a direct import here would cycle). An Executor
// with no EventPublisher wired simply runs silently, which is the
// default in CLI-only `run`/`schedule` invocations that start no API
// server.
type EventPublisher interface {
	Publish(eventType string, data map[string]interface{})
}
