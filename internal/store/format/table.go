// Package format implements the pluggable columnar on-disk encodings for
// Forecast Artifacts: JSON, CSV, Parquet, and XLSX. Every codec operates
// on the same intermediate Table — a struct-of-arrays representation,
// converted to/from a ForecastEnsemble only at the store boundary.
package format

import (
	"fmt"
	"time"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/validate"
)

// SchemaVersion is the current persisted-artifact schema version,
// carried in every artifact's schema_version column.
const SchemaVersion = "1.0"

// Table is the columnar, struct-of-arrays in-memory form of one
// ForecastEnsemble, mirroring the required column set every artifact
// must satisfy.
type Table struct {
	Timestamp           []time.Time
	Product             []string
	PointForecast       []float64
	GenerationTimestamp []time.Time
	IsFallback          []bool
	Samples             [][]float64 // Samples[row][sampleIdx]

	EnsembleGenerationTimestamp time.Time
	EnsembleIsFallback          bool
	SchemaVersion               string
}

// SampleCount returns the table's nominal sample-column width, taken
// from its first row.
func (t *Table) SampleCount() int {
	if len(t.Samples) == 0 {
		return 0
	}
	return len(t.Samples[0])
}

// Columns inspects the table's actual row data and returns the column
// set it truly has, rather than assuming it matches the declared schema.
// The fixed scalar columns are reported only if their backing slices are
// fully populated (one entry per row); sample_NNN columns are reported
// only up to the width every row agrees on, so a row with a ragged
// sample count — e.g. a partially-written or hand-edited CSV artifact —
// surfaces as a genuine missing-or-unexpected-column mismatch against
// validate.RequiredColumns, instead of a width pulled from the same row.
func (t *Table) Columns() []validate.ColumnSpec {
	n := len(t.Timestamp)
	var cols []validate.ColumnSpec

	full := func(col int) bool { return col == n }
	if full(len(t.Product)) {
		cols = append(cols, validate.ColumnSpec{Name: "timestamp", DType: validate.DTypeDatetime})
		cols = append(cols, validate.ColumnSpec{Name: "product", DType: validate.DTypeString})
	}
	if full(len(t.PointForecast)) {
		cols = append(cols, validate.ColumnSpec{Name: "point_forecast", DType: validate.DTypeFloat64})
	}
	if full(len(t.GenerationTimestamp)) {
		cols = append(cols, validate.ColumnSpec{Name: "generation_timestamp", DType: validate.DTypeDatetime})
	}
	if full(len(t.IsFallback)) {
		cols = append(cols, validate.ColumnSpec{Name: "is_fallback", DType: validate.DTypeBool})
	}

	width := t.SampleCount()
	if !full(len(t.Samples)) {
		width = 0
	}
	for _, row := range t.Samples {
		if len(row) < width {
			width = len(row)
		}
	}
	nameWidth := len(fmt.Sprintf("%d", t.SampleCount()))
	for i := 1; i <= width; i++ {
		cols = append(cols, validate.ColumnSpec{Name: fmt.Sprintf("sample_%0*d", nameWidth, i), DType: validate.DTypeFloat64})
	}

	cols = append(cols,
		validate.ColumnSpec{Name: "ensemble_generation_timestamp", DType: validate.DTypeDatetime},
		validate.ColumnSpec{Name: "ensemble_is_fallback", DType: validate.DTypeBool},
		validate.ColumnSpec{Name: "schema_version", DType: validate.DTypeString},
	)
	return cols
}

// ToTable flattens an ensemble into its columnar on-disk form.
func ToTable(ens *forecast.ForecastEnsemble) *Table {
	n := len(ens.Forecasts)
	t := &Table{
		Timestamp:                   make([]time.Time, n),
		Product:                     make([]string, n),
		PointForecast:               make([]float64, n),
		GenerationTimestamp:         make([]time.Time, n),
		IsFallback:                  make([]bool, n),
		Samples:                     make([][]float64, n),
		EnsembleGenerationTimestamp: ens.GenerationTimestamp,
		EnsembleIsFallback:          ens.IsFallback(),
		SchemaVersion:               SchemaVersion,
	}
	for i, f := range ens.Forecasts {
		t.Timestamp[i] = f.Timestamp
		t.Product[i] = string(f.Product)
		t.PointForecast[i] = f.PointForecast
		t.GenerationTimestamp[i] = f.GenerationTimestamp
		t.IsFallback[i] = f.IsFallback
		t.Samples[i] = append([]float64(nil), f.Samples...)
	}
	return t
}

// FromTable reconstructs a ForecastEnsemble from its columnar on-disk
// form, re-validating every invariant NewProbabilisticForecast and
// NewForecastEnsemble enforce.
func FromTable(t *Table) (*forecast.ForecastEnsemble, error) {
	if len(t.Timestamp) == 0 {
		return nil, fmt.Errorf("format: table has no rows")
	}
	product, vr := market.ParseProduct(t.Product[0])
	if !vr.IsValid {
		return nil, fmt.Errorf("format: %v", vr.Messages())
	}

	forecasts := make([]*forecast.ProbabilisticForecast, len(t.Timestamp))
	for i := range t.Timestamp {
		pf, err := forecast.NewProbabilisticForecast(t.Timestamp[i], product, t.PointForecast[i], t.Samples[i], t.GenerationTimestamp[i], t.IsFallback[i])
		if err != nil {
			return nil, fmt.Errorf("format: row %d: %w", i, err)
		}
		forecasts[i] = pf
	}

	start := t.Timestamp[0]
	for _, ts := range t.Timestamp[1:] {
		if ts.Before(start) {
			start = ts
		}
	}
	return forecast.NewForecastEnsemble(product, start, forecasts, t.EnsembleGenerationTimestamp)
}
