// Package forecast implements the Forecasting Engine: for one (product,
// hour), compose model dispatch -> point prediction -> uncertainty
// derivation -> sample draw -> product constraints -> ensemble assembly
// over the 72-hour horizon.
package forecast

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/featuretable"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/modelregistry"
	"github.com/rozsasarpi/gridcast/internal/sampling"
	"github.com/rozsasarpi/gridcast/internal/uncertainty"
)

// HistoricalResiduals supplies the residual/error history a given
// (product, hour) needs for uncertainty derivation. Implementations
// typically read from the Forecast Store's recent artifacts.
type HistoricalResiduals interface {
	Residuals(product market.Product, hour int) []float64
	PercentErrors(product market.Product, hour int) []float64
}

// Clock abstracts "now" so tests can freeze generation timestamps.
type Clock func() time.Time

// Engine produces single-hour ProbabilisticForecasts and 72-hour
// ForecastEnsembles.
type Engine struct {
	Registry            *modelregistry.Registry
	UncertaintyMethod    uncertainty.Method
	Distribution         sampling.Distribution
	Now                  Clock
	Log                  zerolog.Logger
	Seed                 int64 // deterministic RNG seed for scenario generation
	MinBound, MaxBound   *float64
	cache                *lru
	cacheMu              sync.Mutex
}

// NewEngine wires an Engine against a model registry, defaulting the
// uncertainty method and sample distribution to their standard settings.
func NewEngine(registry *modelregistry.Registry, log zerolog.Logger) *Engine {
	return &Engine{
		Registry:          registry,
		UncertaintyMethod: uncertainty.DefaultMethod,
		Distribution:      sampling.DefaultDistribution,
		Now:               time.Now,
		Log:               log.With().Str("component", "forecast_engine").Logger(),
		Seed:              42,
		cache:             newLRU(512),
	}
}

// GenerateHour produces a single (product, hour, timestamp) forecast by
// running the engine's eight-step sequence: validate inputs, dispatch to
// a model, project features, compute a point prediction, derive
// uncertainty, draw samples, apply product constraints, and assemble the
// result. useCache opts into the engine's LRU, keyed on (product, hour,
// timestamp, hash of the whole feature table).
func (e *Engine) GenerateHour(ctx context.Context, product market.Product, hour int, ts time.Time, features *featuretable.Table, hist HistoricalResiduals, useCache bool) (*ProbabilisticForecast, error) {
	// Step 1: validate inputs.
	if !product.IsValid() {
		return nil, &GenerationError{wrapStage(product, hour, "validate", fmt.Errorf("unrecognized product %q", product))}
	}
	if vr := market.ValidateHour(hour); !vr.IsValid {
		return nil, &GenerationError{wrapStage(product, hour, "validate", fmt.Errorf("%s", vr.Messages()))}
	}
	if features.Empty() {
		return nil, &GenerationError{wrapStage(product, hour, "validate", fmt.Errorf("feature table is empty"))}
	}

	var cacheKey string
	if useCache {
		cacheKey = e.cacheKeyFor(product, hour, ts, features)
		if cached, ok := e.cacheGet(cacheKey); ok {
			return cached, nil
		}
	}

	// Step 2: model dispatch.
	model, featureNames, _, ok := e.Registry.Get(product, hour)
	if !ok {
		se := wrapStage(product, hour, "model_dispatch", fmt.Errorf("no model registered for (%s, %d)", product, hour))
		return nil, &GenerationError{wrapStage(product, hour, se.Stage, &ModelSelectionError{se})}
	}

	// Step 3: feature projection.
	row, err := features.RowAt(ts, featureNames)
	if err != nil {
		se := wrapStage(product, hour, "feature_projection", err)
		return nil, &GenerationError{wrapStage(product, hour, se.Stage, &InvalidFeatureError{StageError: se})}
	}

	// Step 4: point prediction.
	point, err := model.Predict(row)
	if err != nil {
		se := wrapStage(product, hour, "point_prediction", err)
		return nil, &GenerationError{wrapStage(product, hour, se.Stage, &ModelExecutionError{se})}
	}
	if math.IsNaN(point) || math.IsInf(point, 0) {
		se := wrapStage(product, hour, "point_prediction", fmt.Errorf("non-finite point prediction: %v", point))
		return nil, &GenerationError{wrapStage(product, hour, se.Stage, &ModelExecutionError{se})}
	}

	// Step 5: uncertainty derivation.
	var residuals, pctErrors []float64
	if hist != nil {
		residuals = hist.Residuals(product, hour)
		pctErrors = hist.PercentErrors(product, hour)
	}
	unc := uncertainty.Derive(e.UncertaintyMethod, uncertainty.Input{
		Product:       product,
		Point:         point,
		Residuals:     residuals,
		PercentErrors: pctErrors,
	})
	if unc.UsedFallback {
		e.Log.Warn().Str("product", string(product)).Int("hour", hour).Str("requested", string(unc.RequestedName)).Msg("unknown uncertainty method, falling back to default")
	}

	// Step 6: sample generation.
	samples, err := sampling.Generate(sampling.Params{
		Distribution: e.Distribution,
		Mean:         unc.Mean,
		StdDev:       unc.StdDev,
		N:            SampleCount,
		Source:       rand.NewSource(e.Seed ^ int64(ts.Unix()) ^ int64(hour)),
	})
	if err != nil {
		return nil, &GenerationError{wrapStage(product, hour, "sample_generation", err)}
	}

	// Step 7: product constraints.
	samples = applyConstraints(product, samples, e.MinBound, e.MaxBound)
	point = applyPointConstraint(product, point, e.MinBound, e.MaxBound)

	// Step 8: assemble.
	now := e.Now()
	pf, err := NewProbabilisticForecast(ts, product, point, samples, now, false)
	if err != nil {
		return nil, &GenerationError{wrapStage(product, hour, "assemble", err)}
	}

	if useCache {
		e.cachePut(cacheKey, pf)
	}
	return pf, nil
}

// GenerateEnsemble iterates the 72-hour horizon starting at startTime,
// reusing the same feature table across all hours. It always propagates
// a per-hour failure immediately; the pipeline, not the engine, decides
// whether to route to fallback.
func (e *Engine) GenerateEnsemble(ctx context.Context, product market.Product, startTime time.Time, features *featuretable.Table, hist HistoricalResiduals, useCache bool) (*ForecastEnsemble, error) {
	timestamps := hourRange(startTime, HorizonHours)
	forecasts := make([]*ProbabilisticForecast, 0, HorizonHours)

	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pf, err := e.GenerateHour(ctx, product, ts.Hour(), ts, features, hist, useCache)
		if err != nil {
			return nil, err
		}
		forecasts = append(forecasts, pf)
	}

	return NewForecastEnsemble(product, startTime, forecasts, e.Now())
}

// ClearCache empties the engine's result cache.
func (e *Engine) ClearCache() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache = newLRU(e.cache.capacity)
}

func applyConstraints(product market.Product, samples []float64, min, max *float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		if product.IsAncillary() && s < 0 {
			s = 0
		}
		if min != nil && s < *min {
			s = *min
		}
		if max != nil && s > *max {
			s = *max
		}
		out[i] = s
	}
	return out
}

func applyPointConstraint(product market.Product, point float64, min, max *float64) float64 {
	if product.IsAncillary() && point < 0 {
		point = 0
	}
	if min != nil && point < *min {
		point = *min
	}
	if max != nil && point > *max {
		point = *max
	}
	return point
}

func hourRange(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

// cacheKeyFor hashes (product, hour, timestamp) and every value of every
// feature column, taken in sorted column-name order, into a stable string
// key, mirroring the teacher's hashISINs/hashRegimeAwareCovKey
// cache-key idiom (internal/modules/optimization/risk.go).
func (e *Engine) cacheKeyFor(product market.Product, hour int, ts time.Time, features *featuretable.Table) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", product, hour, ts.Unix())
	if features != nil {
		names := make([]string, 0, len(features.Columns))
		for name := range features.Columns {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			col := features.Columns[name]
			fmt.Fprintf(h, "|%s", name)
			for _, v := range col {
				var buf [8]byte
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				h.Write(buf[:])
			}
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (e *Engine) cacheGet(key string) (*ProbabilisticForecast, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	return e.cache.get(key)
}

func (e *Engine) cachePut(key string, pf *ProbabilisticForecast) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache.put(key, pf)
}

// lru is a minimal container/list + map LRU cache. No LRU-cache library
// appears anywhere in the retrieved example corpus, so this is a
// deliberately small stdlib implementation (see DESIGN.md).
type lru struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key   string
	value *ProbabilisticForecast
}

func newLRU(capacity int) *lru {
	return &lru{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *lru) get(key string) (*ProbabilisticForecast, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lru) put(key string, value *ProbabilisticForecast) {
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}
