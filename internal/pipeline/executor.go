package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/fallback"
	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/ingest"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/validate"
	"github.com/rozsasarpi/gridcast/internal/validation"
)

// Per-stage timeout budgets.
const (
	ingestTimeout   = 10 * time.Minute
	featuresTimeout = 5 * time.Minute
	forecastTimeout = 15 * time.Minute
	validateTimeout = 2 * time.Minute
	storeTimeout    = 2 * time.Minute
)

// ErrBusy is returned by RunCycle when a cycle is already in flight.
var ErrBusy = fmt.Errorf("pipeline: a cycle is already running")

// Executor wires the Ingester, FeatureBuilder, Forecasting Engine,
// Forecast Store, and Fallback Engine into one scheduled forecast cycle,
// grounded on the teacher's internal/work.Processor single-flight
// discipline (a mutex-guarded "running" flag rather than a worker pool,
// since only one cycle may ever be in flight at a time).
type Executor struct {
	Ingester  Ingester
	Features  FeatureBuilder
	Forecast  *forecast.Engine
	Store     *store.Store
	Fallback  *fallback.Engine
	Residuals forecast.HistoricalResiduals
	Log       zerolog.Logger
	Events    EventPublisher // optional; nil means no SSE announcements

	ParallelForecast bool // forecast stage fans out over products concurrently

	mu      sync.Mutex
	running bool
}

// NewExecutor wires an Executor from its collaborators.
func NewExecutor(ing Ingester, feat FeatureBuilder, fc *forecast.Engine, st *store.Store, fb *fallback.Engine, log zerolog.Logger) *Executor {
	return &Executor{
		Ingester: ing,
		Features: feat,
		Forecast: fc,
		Store:    st,
		Fallback: fb,
		Log:      log.With().Str("component", "pipeline_executor").Logger(),
	}
}

// tryAcquire enforces the at-most-one-concurrent-cycle guard. It returns
// false if a cycle is already running.
func (x *Executor) tryAcquire() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.running {
		return false
	}
	x.running = true
	return true
}

func (x *Executor) release() {
	x.mu.Lock()
	x.running = false
	x.mu.Unlock()
}

// publish announces eventType to x.Events if one is wired; it is a
// no-op for CLI-only invocations that start no Query API server.
func (x *Executor) publish(eventType string, data map[string]interface{}) {
	if x.Events == nil {
		return
	}
	x.Events.Publish(eventType, data)
}

// RunCycle runs one full forecast cycle for targetDate across all six
// products, returning one Result per product. A cycle already in flight
// causes RunCycle to return ErrBusy immediately, enforcing at most one
// concurrent execution globally.
func (x *Executor) RunCycle(ctx context.Context, targetDate time.Time, windowStart time.Time) ([]Result, error) {
	if !x.tryAcquire() {
		return nil, ErrBusy
	}
	defer x.release()

	pc := NewContext(targetDate, windowStart)
	log := x.Log.With().Time("target_date", targetDate).Logger()

	log.Info().Msg("starting pipeline cycle")
	x.publish("cycle_started", map[string]interface{}{"target_date": targetDate.Format("2006-01-02")})

	if err := x.runStage(ctx, pc, x.ingestStage()); err != nil {
		return x.routeAllToFallback(ctx, pc, "ingest", err)
	}
	if err := x.runStage(ctx, pc, x.featuresStage()); err != nil {
		return x.routeAllToFallback(ctx, pc, "features", err)
	}

	var forecastErr error
	if x.ParallelForecast {
		forecastErr = x.runForecastStageParallel(ctx, pc)
	} else {
		forecastErr = x.runStage(ctx, pc, x.forecastStage())
	}
	if forecastErr != nil {
		return x.routeAllToFallback(ctx, pc, "forecast", forecastErr)
	}

	results := make([]Result, 0, len(market.AllProducts()))
	for _, product := range market.AllProducts() {
		ens, ok := pc.Ensembles[product]
		if !ok {
			results = append(results, x.fallbackOne(ctx, pc, product, "forecast", fmt.Errorf("no ensemble produced for %s", product)))
			continue
		}

		vr := validation.Merge(validate.Completeness(ens), validate.Plausibility(ens))
		pc.ValidationResults[product] = vr
		if !vr.IsValid {
			results = append(results, x.fallbackOne(ctx, pc, product, "validate", fmt.Errorf("validation failed: %v", vr.Messages())))
			continue
		}

		entry, err := x.Store.Put(ens)
		if err != nil {
			results = append(results, x.fallbackOne(ctx, pc, product, "store", err))
			continue
		}
		pc.IndexEntries[product] = entry

		results = append(results, Result{Product: string(product), FinalState: StateCompleted, IsFallback: ens.IsFallback()})
		recordCycle("completed")
		x.publish("product_completed", map[string]interface{}{"product": string(product), "target_date": targetDate.Format("2006-01-02")})
	}

	consistency := validate.Consistency(pc.Ensembles)
	if len(consistency.WarningMessages()) > 0 {
		log.Warn().Strs("warnings", consistency.WarningMessages()).Msg("cross-product consistency warnings")
	}

	log.Info().Int("results", len(results)).Msg("pipeline cycle finished")
	x.publish("cycle_finished", map[string]interface{}{"target_date": targetDate.Format("2006-01-02"), "results": len(results)})
	return results, nil
}

// runStage runs stage through the Timed middleware, plus Retried when
// the stage itself carries no internal retry (ingest.Client already
// retries each feed, so the ingest stage runs with a single attempt to
// avoid compounding backoffs).
func (x *Executor) runStage(ctx context.Context, pc *Context, stage Stage) error {
	mw := []Middleware{Retried(stage.retryAttempts(), time.Second), Timed(stage.Name, stage.Timeout)}
	if stage.Validate != nil {
		mw = append([]Middleware{Validated(stage.Validate)}, mw...)
	}
	fn := Chain(stage.Run, mw...)
	return fn(ctx, pc)
}

// bundleReceiver is implemented by Residuals providers that need each
// cycle's freshly ingested Bundle (e.g. to reconcile realized prices
// against previously stored forecasts); providers that don't care about
// per-cycle state simply don't implement it.
type bundleReceiver interface {
	SetBundle(bundle ingest.Bundle)
}

func (x *Executor) ingestStage() Stage {
	return Stage{Name: "ingest", Timeout: ingestTimeout, Attempts: 1, Run: func(ctx context.Context, pc *Context) error {
		bundle, err := x.Ingester.FetchBundle(ctx)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		pc.Bundle = bundle
		if br, ok := x.Residuals.(bundleReceiver); ok {
			br.SetBundle(bundle)
		}
		return nil
	}}
}

func (x *Executor) featuresStage() Stage {
	return Stage{Name: "features", Timeout: featuresTimeout, Attempts: 2, Run: func(ctx context.Context, pc *Context) error {
		table, err := x.Features.Build(ctx, pc.Bundle, pc.WindowStart)
		if err != nil {
			return fmt.Errorf("features: %w", err)
		}
		pc.Features = table
		return nil
	}}
}

func (x *Executor) forecastStage() Stage {
	return Stage{Name: "forecast", Timeout: forecastTimeout, Attempts: 1, Validate: validateAllProductsForecast, Run: func(ctx context.Context, pc *Context) error {
		for _, product := range market.AllProducts() {
			ens, err := x.Forecast.GenerateEnsemble(ctx, product, pc.WindowStart, pc.Features, x.Residuals, true)
			if err != nil {
				return fmt.Errorf("forecast %s: %w", product, err)
			}
			pc.Ensembles[product] = ens
		}
		return nil
	}}
}

// validateAllProductsForecast is the forecast stage's Stage.Validate
// contract: every product in market.AllProducts() must have produced an
// ensemble before the stage is considered to have advanced.
func validateAllProductsForecast(pc *Context) error {
	for _, product := range market.AllProducts() {
		if _, ok := pc.Ensembles[product]; !ok {
			return fmt.Errorf("forecast stage: no ensemble produced for %s", product)
		}
	}
	return nil
}

// runForecastStageParallel fans the forecast stage out over the six
// products concurrently, then writes results into pc.Ensembles in the
// deterministic market.AllProducts() order so downstream index writes
// stay order-independent of goroutine scheduling.
func (x *Executor) runForecastStageParallel(ctx context.Context, pc *Context) error {
	products := market.AllProducts()
	ensembles := make([]*forecast.ForecastEnsemble, len(products))
	errs := make([]error, len(products))

	stageCtx, cancel := context.WithTimeout(ctx, forecastTimeout)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for i, product := range products {
		wg.Add(1)
		go func(i int, product market.Product) {
			defer wg.Done()
			ens, err := x.Forecast.GenerateEnsemble(stageCtx, product, pc.WindowStart, pc.Features, x.Residuals, true)
			ensembles[i] = ens
			errs[i] = err
		}(i, product)
	}
	wg.Wait()

	outcome := "ok"
	defer func() { recordStage("forecast", outcome, time.Since(start).Seconds()) }()

	for i, product := range products {
		if errs[i] != nil {
			outcome = "error"
			return fmt.Errorf("forecast %s: %w", product, errs[i])
		}
		pc.Ensembles[product] = ensembles[i]
	}
	return nil
}

// fallbackOne routes a single product to the Fallback Engine after a
// stage failure and attempts to store the result.
func (x *Executor) fallbackOne(ctx context.Context, pc *Context, product market.Product, failedStage string, cause error) Result {
	x.Log.Warn().Str("product", string(product)).Str("failed_stage", failedStage).Err(cause).Msg("routing product to fallback")
	pc.FailedStage = failedStage
	pc.FailureErr = cause

	ens, err := x.Fallback.Generate(product, fallback.Reason{
		TargetDate:  pc.TargetDate,
		FailedStage: failedStage,
		Cause:       cause,
	}, pc.WindowStart)
	if err != nil {
		recordCycle("failed")
		x.publish("product_failed", map[string]interface{}{"product": string(product), "failed_stage": failedStage, "error": err.Error()})
		return Result{Product: string(product), FinalState: StateFailed, FailedStage: failedStage, Err: err}
	}

	pc.Ensembles[product] = ens
	recordCycle("completed_fallback")
	x.publish("product_fallback", map[string]interface{}{"product": string(product), "failed_stage": failedStage})
	return Result{Product: string(product), FinalState: StateCompletedFallback, IsFallback: true, FailedStage: failedStage}
}

// routeAllToFallback is invoked when an upstream-shared stage (ingest,
// features, or forecast) fails before per-product results exist: every
// product falls back independently.
func (x *Executor) routeAllToFallback(ctx context.Context, pc *Context, failedStage string, cause error) ([]Result, error) {
	results := make([]Result, 0, len(market.AllProducts()))
	for _, product := range market.AllProducts() {
		results = append(results, x.fallbackOne(ctx, pc, product, failedStage, cause))
	}
	return results, nil
}
