// Package validate implements the four validators: completeness,
// plausibility, consistency, and schema conformance. Each is a pure
// function returning a validation.Result: Completeness and Plausibility
// take one ForecastEnsemble, Consistency takes one cycle's ensembles
// keyed by product, and Schema takes an artifact's column list. Results
// compose by validation.Merge.
package validate

import (
	"fmt"
	"time"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/validation"
)

// Completeness checks that an ensemble covers every hour in
// [start_time, end_time) exactly once.
func Completeness(ens *forecast.ForecastEnsemble) validation.Result {
	r := validation.OK()
	if ens == nil {
		r.AddError(validation.CategoryCompleteness, "ensemble is nil")
		return r
	}

	seen := make(map[time.Time]int, len(ens.Forecasts))
	for _, f := range ens.Forecasts {
		seen[f.Timestamp]++
	}

	for ts := ens.StartTime; ts.Before(ens.EndTime); ts = ts.Add(time.Hour) {
		count, ok := seen[ts]
		switch {
		case !ok:
			r.AddError(validation.CategoryCompleteness, fmt.Sprintf("missing hour %s", ts.Format(time.RFC3339)))
		case count > 1:
			r.AddError(validation.CategoryCompleteness, fmt.Sprintf("hour %s present %d times, want 1", ts.Format(time.RFC3339), count))
		}
	}

	for ts := range seen {
		if ts.Before(ens.StartTime) || !ts.Before(ens.EndTime) {
			r.AddError(validation.CategoryCompleteness, fmt.Sprintf("hour %s outside ensemble window [%s,%s)", ts.Format(time.RFC3339), ens.StartTime.Format(time.RFC3339), ens.EndTime.Format(time.RFC3339)))
		}
	}

	return r
}
