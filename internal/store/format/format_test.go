package format

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
)

func sampleEnsemble(t *testing.T) *forecast.ForecastEnsemble {
	t.Helper()
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)
	forecasts := make([]*forecast.ProbabilisticForecast, forecast.HorizonHours)
	for i := range forecasts {
		samples := make([]float64, forecast.SampleCount)
		for j := range samples {
			samples[j] = 30 + float64(j%5)
		}
		pf, err := forecast.NewProbabilisticForecast(start.Add(time.Duration(i)*time.Hour), market.DALMP, 30, samples, start, false)
		require.NoError(t, err)
		forecasts[i] = pf
	}
	ens, err := forecast.NewForecastEnsemble(market.DALMP, start, forecasts, start)
	require.NoError(t, err)
	return ens
}

func TestJSONRoundTrip(t *testing.T) {
	ens := sampleEnsemble(t)
	table := ToTable(ens)
	path := filepath.Join(t.TempDir(), "artifact.json")

	require.NoError(t, JSONFormat{}.Write(path, table))
	got, err := JSONFormat{}.Read(path)
	require.NoError(t, err)

	roundTripped, err := FromTable(got)
	require.NoError(t, err)
	assert.Equal(t, ens.Product, roundTripped.Product)
	assert.Len(t, roundTripped.Forecasts, forecast.HorizonHours)
	assert.Equal(t, ens.Forecasts[0].PointForecast, roundTripped.Forecasts[0].PointForecast)
}

func TestCSVRoundTrip(t *testing.T) {
	ens := sampleEnsemble(t)
	table := ToTable(ens)
	path := filepath.Join(t.TempDir(), "artifact.csv")

	require.NoError(t, CSVFormat{}.Write(path, table))
	got, err := CSVFormat{}.Read(path)
	require.NoError(t, err)

	roundTripped, err := FromTable(got)
	require.NoError(t, err)
	assert.Len(t, roundTripped.Forecasts, forecast.HorizonHours)
	assert.InDelta(t, ens.Forecasts[3].Samples[2], roundTripped.Forecasts[3].Samples[2], 1e-9)
}

func TestXLSXRoundTrip(t *testing.T) {
	ens := sampleEnsemble(t)
	table := ToTable(ens)
	path := filepath.Join(t.TempDir(), "artifact.xlsx")

	require.NoError(t, XLSXFormat{}.Write(path, table))
	got, err := XLSXFormat{}.Read(path)
	require.NoError(t, err)

	roundTripped, err := FromTable(got)
	require.NoError(t, err)
	assert.Len(t, roundTripped.Forecasts, forecast.HorizonHours)
}

func TestParquetRoundTrip(t *testing.T) {
	ens := sampleEnsemble(t)
	table := ToTable(ens)
	path := filepath.Join(t.TempDir(), "artifact.parquet")

	require.NoError(t, ParquetFormat{}.Write(path, table))
	got, err := ParquetFormat{}.Read(path)
	require.NoError(t, err)

	roundTripped, err := FromTable(got)
	require.NoError(t, err)
	assert.Len(t, roundTripped.Forecasts, forecast.HorizonHours)
	assert.InDelta(t, ens.Forecasts[0].PointForecast, roundTripped.Forecasts[0].PointForecast, 1e-6)
}

func TestSchemaColumnsMatchDeclaredSchema(t *testing.T) {
	ens := sampleEnsemble(t)
	table := ToTable(ens)
	assert.Equal(t, forecast.SampleCount, table.SampleCount())
}

func TestGetUnknownFormatReturnsError(t *testing.T) {
	_, err := Get("bogus")
	assert.Error(t, err)
}

func TestRegisteredFormatsIncludeAllFour(t *testing.T) {
	names := Names()
	for _, want := range []string{"json", "csv", "parquet", "xlsx"} {
		assert.Contains(t, names, want)
	}
}
