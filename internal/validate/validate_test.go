package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
)

func buildEnsemble(t *testing.T, product market.Product, start time.Time, pointBase float64) *forecast.ForecastEnsemble {
	return buildEnsembleWithSpread(t, product, start, pointBase, 0)
}

func buildEnsembleWithSpread(t *testing.T, product market.Product, start time.Time, pointBase, spread float64) *forecast.ForecastEnsemble {
	t.Helper()
	forecasts := make([]*forecast.ProbabilisticForecast, forecast.HorizonHours)
	for i := range forecasts {
		samples := make([]float64, forecast.SampleCount)
		for j := range samples {
			samples[j] = pointBase
		}
		if spread != 0 && len(samples) > 1 {
			samples[0] = pointBase + spread
			samples[1] = pointBase - spread
		}
		pf, err := forecast.NewProbabilisticForecast(start.Add(time.Duration(i)*time.Hour), product, pointBase, samples, start, false)
		require.NoError(t, err)
		forecasts[i] = pf
	}
	ens, err := forecast.NewForecastEnsemble(product, start, forecasts, start)
	require.NoError(t, err)
	return ens
}

func TestCompletenessPassesOnFullEnsemble(t *testing.T) {
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	ens := buildEnsemble(t, market.DALMP, start, 30)
	r := Completeness(ens)
	assert.True(t, r.IsValid)
}

func TestCompletenessFlagsMissingHour(t *testing.T) {
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	ens := buildEnsemble(t, market.DALMP, start, 30)
	ens.Forecasts = append(ens.Forecasts[:10], ens.Forecasts[11:]...)
	r := Completeness(ens)
	assert.False(t, r.IsValid)
	assert.NotEmpty(t, r.Errors["completeness"])
}

func TestPlausibilityFlagsOutOfEnvelope(t *testing.T) {
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	ens := buildEnsemble(t, market.DALMP, start, 50000) // way outside [-1000,10000]
	r := Plausibility(ens)
	assert.False(t, r.IsValid)
}

func TestPlausibilityPassesForAncillaryAtZero(t *testing.T) {
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	ens := buildEnsemble(t, market.RegUp, start, 0)
	r := Plausibility(ens)
	assert.True(t, r.IsValid)
}

func TestConsistencyWarnsWhenRTLMPLessVolatileThanDALMP(t *testing.T) {
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	da := buildEnsembleWithSpread(t, market.DALMP, start, 30, 100) // high spread -> stddev > 0
	rt := buildEnsemble(t, market.RTLMP, start, 35)                // zero-variance samples -> stddev 0

	r := Consistency(map[market.Product]*forecast.ForecastEnsemble{
		market.DALMP: da,
		market.RTLMP: rt,
	})
	assert.True(t, r.IsValid) // soft warning, not blocking
	assert.NotEmpty(t, r.Warnings["consistency"])
}

func TestConsistencyFlagsNegativeRegUp(t *testing.T) {
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	regUp := buildEnsemble(t, market.RegUp, start, 10)
	regUp.Forecasts[3].PointForecast = -5

	r := Consistency(map[market.Product]*forecast.ForecastEnsemble{market.RegUp: regUp})
	assert.False(t, r.IsValid)
	assert.NotEmpty(t, r.Errors["consistency"])
}

func TestSchemaPassesForRequiredColumns(t *testing.T) {
	r := Schema(RequiredColumns(100), 100)
	assert.True(t, r.IsValid)
}

func TestSchemaFlagsMissingAndExtraColumns(t *testing.T) {
	cols := RequiredColumns(100)
	cols = cols[1:]                                           // drop "product"
	cols = append(cols, ColumnSpec{"mystery_column", "string"}) // add unexpected

	r := Schema(cols, 100)
	assert.False(t, r.IsValid)
	assert.NotEmpty(t, r.Errors["schema"])
}

func TestSchemaFlagsDTypeMismatch(t *testing.T) {
	cols := RequiredColumns(100)
	for i := range cols {
		if cols[i].Name == "point_forecast" {
			cols[i].DType = "string"
		}
	}
	r := Schema(cols, 100)
	assert.False(t, r.IsValid)
}
