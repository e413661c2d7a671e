package validate

import (
	"fmt"
	"math"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/validation"
)

// Plausibility checks that every point forecast and sample in an
// ensemble is finite, that ancillary-product values are non-negative,
// and that energy-product values fall within the configurable sanity
// envelope returned by market.PlausibilityBounds.
func Plausibility(ens *forecast.ForecastEnsemble) validation.Result {
	r := validation.OK()
	if ens == nil {
		r.AddError(validation.CategoryPlausibility, "ensemble is nil")
		return r
	}

	min, max := market.PlausibilityBounds()

	for _, f := range ens.Forecasts {
		if math.IsNaN(f.PointForecast) || math.IsInf(f.PointForecast, 0) {
			r.AddError(validation.CategoryPlausibility, fmt.Sprintf("%s %s: point forecast not finite (%v)", f.Product, f.Timestamp.Format("2006-01-02T15:04"), f.PointForecast))
		}
		for i, s := range f.Samples {
			if math.IsNaN(s) || math.IsInf(s, 0) {
				r.AddError(validation.CategoryPlausibility, fmt.Sprintf("%s %s: sample %d not finite (%v)", f.Product, f.Timestamp.Format("2006-01-02T15:04"), i, s))
				continue
			}
			if f.Product.IsAncillary() && s < 0 {
				r.AddError(validation.CategoryPlausibility, fmt.Sprintf("%s %s: sample %d is negative (%v) for ancillary product", f.Product, f.Timestamp.Format("2006-01-02T15:04"), i, s))
				continue
			}
			if !f.Product.IsAncillary() && (s < min || s > max) {
				r.AddError(validation.CategoryPlausibility, fmt.Sprintf("%s %s: sample %d (%v) outside plausibility envelope [%v,%v]", f.Product, f.Timestamp.Format("2006-01-02T15:04"), i, s, min, max))
			}
		}
	}

	return r
}
