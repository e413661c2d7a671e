package fallback

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/store/format"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"), format.JSONFormat{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestColdStartWhenNoPriorArtifactExists(t *testing.T) {
	s := openStore(t)
	e := NewEngine(s, zerolog.Nop())
	windowStart := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)

	ens, err := e.Generate(market.DALMP, Reason{TargetDate: windowStart, FailedStage: "ingest", Cause: errors.New("upstream unavailable")}, windowStart)
	require.NoError(t, err)
	assert.True(t, ens.IsFallback())
	assert.Equal(t, market.DefaultFallbackPrice(market.DALMP), ens.Forecasts[0].PointForecast)
	for _, s := range ens.Forecasts[0].Samples {
		assert.Equal(t, ens.Forecasts[0].PointForecast, s) // zero-variance
	}

	fromStore, err := s.GetLatest(market.DALMP)
	require.NoError(t, err)
	assert.True(t, fromStore.IsFallback())
}

func TestRestampsPriorNonFallbackArtifact(t *testing.T) {
	s := openStore(t)
	priorStart := time.Date(2023, 5, 30, 7, 0, 0, 0, time.UTC)
	priorForecasts := make([]*forecast.ProbabilisticForecast, forecast.HorizonHours)
	for i := range priorForecasts {
		samples := make([]float64, forecast.SampleCount)
		for j := range samples {
			samples[j] = 42
		}
		pf, err := forecast.NewProbabilisticForecast(priorStart.Add(time.Duration(i)*time.Hour), market.DALMP, 42, samples, priorStart, false)
		require.NoError(t, err)
		priorForecasts[i] = pf
	}
	priorEns, err := forecast.NewForecastEnsemble(market.DALMP, priorStart, priorForecasts, priorStart)
	require.NoError(t, err)
	_, err = s.Put(priorEns)
	require.NoError(t, err)

	e := NewEngine(s, zerolog.Nop())
	windowStart := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	ens, err := e.Generate(market.DALMP, Reason{TargetDate: windowStart, FailedStage: "forecast"}, windowStart)
	require.NoError(t, err)

	assert.True(t, ens.IsFallback())
	assert.Equal(t, windowStart, ens.StartTime)
	assert.Equal(t, 42.0, ens.Forecasts[0].PointForecast) // re-stamped, value carried forward
}
