package validate

import (
	"fmt"
	"sort"

	"github.com/rozsasarpi/gridcast/internal/validation"
)

// ColumnSpec names one column of a persisted artifact and its declared
// dtype.
type ColumnSpec struct {
	Name  string
	DType string
}

// Dtype tags used in ColumnSpec.DType.
const (
	DTypeDatetime = "datetime"
	DTypeString   = "string"
	DTypeFloat64  = "float64"
	DTypeBool     = "bool"
)

// RequiredColumns returns the exact declared schema for a forecast
// artifact with sampleCount sample columns.
func RequiredColumns(sampleCount int) []ColumnSpec {
	cols := []ColumnSpec{
		{"timestamp", DTypeDatetime},
		{"product", DTypeString},
		{"point_forecast", DTypeFloat64},
		{"generation_timestamp", DTypeDatetime},
		{"is_fallback", DTypeBool},
	}
	width := len(fmt.Sprintf("%d", sampleCount))
	for i := 1; i <= sampleCount; i++ {
		cols = append(cols, ColumnSpec{fmt.Sprintf("sample_%0*d", width, i), DTypeFloat64})
	}
	cols = append(cols,
		ColumnSpec{"ensemble_generation_timestamp", DTypeDatetime},
		ColumnSpec{"ensemble_is_fallback", DTypeBool},
		ColumnSpec{"schema_version", DTypeString},
	)
	return cols
}

// Schema validates that actual matches the declared schema for
// sampleCount sample columns: every required column must be present
// with the right dtype, and no extra columns may appear.
func Schema(actual []ColumnSpec, sampleCount int) validation.Result {
	r := validation.OK()

	required := RequiredColumns(sampleCount)
	requiredByName := make(map[string]string, len(required))
	for _, c := range required {
		requiredByName[c.Name] = c.DType
	}

	actualByName := make(map[string]string, len(actual))
	for _, c := range actual {
		actualByName[c.Name] = c.DType
	}

	var missing []string
	for name, wantType := range requiredByName {
		gotType, ok := actualByName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if gotType != wantType {
			r.AddError(validation.CategorySchema, fmt.Sprintf("column %q: dtype %q, want %q", name, gotType, wantType))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		r.AddError(validation.CategorySchema, fmt.Sprintf("missing columns: %v", missing))
	}

	var extra []string
	for name := range actualByName {
		if _, ok := requiredByName[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		r.AddError(validation.CategorySchema, fmt.Sprintf("unexpected columns: %v", extra))
	}

	return r
}
