package residuals

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/ingest"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/store/format"
)

func sampleEnsemble(t *testing.T, product market.Product, start time.Time, point float64) *forecast.ForecastEnsemble {
	t.Helper()
	samples := make([]float64, forecast.SampleCount)
	for i := range samples {
		samples[i] = point
	}
	forecasts := make([]*forecast.ProbabilisticForecast, forecast.HorizonHours)
	for i := range forecasts {
		f, err := forecast.NewProbabilisticForecast(start.Add(time.Duration(i)*time.Hour), product, point, samples, start, false)
		require.NoError(t, err)
		forecasts[i] = f
	}
	ens, err := forecast.NewForecastEnsemble(product, start, forecasts, start)
	require.NoError(t, err)
	return ens
}

func TestResidualsEmptyWithoutBundle(t *testing.T) {
	st, err := store.Open(t.TempDir(), format.JSONFormat{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := New(st)
	assert.Nil(t, p.Residuals(market.DALMP, 7))
	assert.Nil(t, p.PercentErrors(market.DALMP, 7))
}

func TestResidualsReconcilesStoredForecastAgainstBundle(t *testing.T) {
	st, err := store.Open(t.TempDir(), format.JSONFormat{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	start := time.Date(2026, 7, 30, 7, 0, 0, 0, time.UTC)
	ens := sampleEnsemble(t, market.DALMP, start, 30)
	_, err = st.Put(ens)
	require.NoError(t, err)

	p := New(st)
	p.SetBundle(ingest.Bundle{
		HistoricalPrices: []ingest.HistoricalPriceRow{
			{Timestamp: start, Product: "DALMP", Price: 35, Node: "HB_HOUSTON"},
		},
	})

	residuals := p.Residuals(market.DALMP, start.Hour())
	require.Len(t, residuals, 1)
	assert.InDelta(t, 5.0, residuals[0], 1e-9)

	pct := p.PercentErrors(market.DALMP, start.Hour())
	require.Len(t, pct, 1)
	assert.InDelta(t, 5.0/35.0, pct[0], 1e-9)
}
