package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/featuretable"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/modelregistry"
)

func buildFeatures(start time.Time, n int) *featuretable.Table {
	ts := make([]time.Time, n)
	load := make([]float64, n)
	wind := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = start.Add(time.Duration(i) * time.Hour)
		load[i] = 50000
		wind[i] = 15000
	}
	tbl, _ := featuretable.New(ts, map[string][]float64{"load_mw": load, "wind_mw": wind})
	return tbl
}

func registryWithFullCoverage(t *testing.T) *modelregistry.Registry {
	t.Helper()
	r := modelregistry.New(t.TempDir())
	for _, p := range market.AllProducts() {
		for h := 0; h < 24; h++ {
			require.NoError(t, r.Register(p, h, []float64{0.001, 0.002}, 10, []string{"load_mw", "wind_mw"}, modelregistry.Metrics{}))
		}
	}
	return r
}

func TestGenerateHourMissingModelReturnsModelSelectionError(t *testing.T) {
	r := modelregistry.New(t.TempDir())
	e := NewEngine(r, zerolog.Nop())
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	features := buildFeatures(start, 1)

	_, err := e.GenerateHour(context.Background(), market.DALMP, 0, start, features, nil, false)
	require.Error(t, err)
	var msErr *ModelSelectionError
	assert.ErrorAs(t, err, &msErr)
}

func TestGenerateHourMissingFeatureColumnReturnsInvalidFeatureError(t *testing.T) {
	r := registryWithFullCoverage(t)
	e := NewEngine(r, zerolog.Nop())
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]time.Time, 1)
	ts[0] = start
	tbl, _ := featuretable.New(ts, map[string][]float64{"load_mw": {50000}}) // missing wind_mw

	_, err := e.GenerateHour(context.Background(), market.DALMP, 0, start, tbl, nil, false)
	require.Error(t, err)
	var fe *InvalidFeatureError
	assert.ErrorAs(t, err, &fe)
}

func TestGenerateEnsembleHasExactly72Forecasts(t *testing.T) {
	r := registryWithFullCoverage(t)
	e := NewEngine(r, zerolog.Nop())
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	features := buildFeatures(start, 72)

	ens, err := e.GenerateEnsemble(context.Background(), market.DALMP, start, features, nil, false)
	require.NoError(t, err)
	require.Len(t, ens.Forecasts, HorizonHours)
	assert.Equal(t, start, ens.StartTime)
	assert.Equal(t, start.Add(72*time.Hour), ens.EndTime)
}

func TestAncillaryProductSamplesNeverNegative(t *testing.T) {
	r := registryWithFullCoverage(t)
	e := NewEngine(r, zerolog.Nop())
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	features := buildFeatures(start, 72)

	ens, err := e.GenerateEnsemble(context.Background(), market.RegUp, start, features, nil, false)
	require.NoError(t, err)
	for _, f := range ens.Forecasts {
		for _, s := range f.Samples {
			assert.GreaterOrEqual(t, s, 0.0)
		}
	}
}

func TestEnsembleIsFallbackTrueIffAnyChildFallback(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	forecasts := make([]*ProbabilisticForecast, HorizonHours)
	samples := make([]float64, SampleCount)
	for i := range forecasts {
		pf, err := NewProbabilisticForecast(start.Add(time.Duration(i)*time.Hour), market.DALMP, 10, samples, start, i == 5)
		require.NoError(t, err)
		forecasts[i] = pf
	}
	ens, err := NewForecastEnsemble(market.DALMP, start, forecasts, start)
	require.NoError(t, err)
	assert.True(t, ens.IsFallback())
}

func TestCacheReturnsSamePointerOnHit(t *testing.T) {
	r := registryWithFullCoverage(t)
	e := NewEngine(r, zerolog.Nop())
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	features := buildFeatures(start, 1)

	first, err := e.GenerateHour(context.Background(), market.DALMP, 7, start, features, nil, true)
	require.NoError(t, err)
	second, err := e.GenerateHour(context.Background(), market.DALMP, 7, start, features, nil, true)
	require.NoError(t, err)
	assert.Same(t, first, second)
}
