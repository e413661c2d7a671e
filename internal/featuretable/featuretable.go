// Package featuretable provides the struct-of-arrays feature table that
// the forecasting engine projects against a model's feature-name
// contract: a fixed-schema, column-keyed representation rather than a
// dynamic dataframe; columnar (de)serialization happens only at the
// store boundary.
package featuretable

import (
	"fmt"
	"math"
	"time"
)

// Table is one feature vector per timestamp, keyed by column name.
type Table struct {
	Timestamps []time.Time
	Columns    map[string][]float64
	index      map[time.Time]int
}

// New builds a Table from parallel timestamps and named columns. All
// columns must have the same length as timestamps.
func New(timestamps []time.Time, columns map[string][]float64) (*Table, error) {
	for name, col := range columns {
		if len(col) != len(timestamps) {
			return nil, fmt.Errorf("featuretable: column %q has %d rows, want %d", name, len(col), len(timestamps))
		}
	}
	t := &Table{
		Timestamps: timestamps,
		Columns:    columns,
		index:      make(map[time.Time]int, len(timestamps)),
	}
	for i, ts := range timestamps {
		t.index[ts] = i
	}
	return t, nil
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.Timestamps) == 0
}

// RowAt returns the feature vector for the given timestamp, selecting and
// reordering columns to match featureNames. It fails if any named column
// is absent from the table, absent at this timestamp's row, or NaN/Inf.
func (t *Table) RowAt(ts time.Time, featureNames []string) ([]float64, error) {
	if t.Empty() {
		return nil, fmt.Errorf("featuretable: table is empty")
	}
	idx, ok := t.index[ts]
	if !ok {
		return nil, fmt.Errorf("featuretable: no row for timestamp %s", ts)
	}

	var missing []string
	var nonFinite []string
	row := make([]float64, len(featureNames))
	for i, name := range featureNames {
		col, ok := t.Columns[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		v := col[idx]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			nonFinite = append(nonFinite, name)
			continue
		}
		row[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("featuretable: missing feature columns: %v", missing)
	}
	if len(nonFinite) > 0 {
		return nil, fmt.Errorf("featuretable: non-finite values in columns: %v", nonFinite)
	}
	return row, nil
}

// HasColumn reports whether name is present in the table (used for "extras
// are ignored" checks at call sites).
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Columns[name]
	return ok
}
