package validate

import (
	"fmt"
	"time"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/validation"
)

// ancillaryProducts are the products summed for the "ancillary sum never
// negative" check; RRS/NSRS/RegUp/RegDown all qualify as ancillary per
// market.Product.IsAncillary.
var ancillaryProducts = []market.Product{market.RegUp, market.RegDown, market.RRS, market.NSRS}

// Consistency checks cross-product relations across one forecast cycle's
// ensembles, keyed by product. RTLMP-vs-DALMP volatility is a soft
// warning (not blocking); RegUp/RegDown non-negativity and the
// ancillary-sum-never-negative check are both blocking.
func Consistency(byProduct map[market.Product]*forecast.ForecastEnsemble) validation.Result {
	r := validation.OK()

	checkNonNegative(&r, byProduct, market.RegUp)
	checkNonNegative(&r, byProduct, market.RegDown)
	checkVolatility(&r, byProduct)
	checkAncillarySum(&r, byProduct)

	return r
}

func checkNonNegative(r *validation.Result, byProduct map[market.Product]*forecast.ForecastEnsemble, product market.Product) {
	ens := byProduct[product]
	if ens == nil {
		return
	}
	for _, f := range ens.Forecasts {
		if f.PointForecast < 0 {
			r.AddError(validation.CategoryConsistency, fmt.Sprintf("%s %s: point forecast %v is negative", product, f.Timestamp.Format("2006-01-02T15:04"), f.PointForecast))
		}
	}
}

func checkVolatility(r *validation.Result, byProduct map[market.Product]*forecast.ForecastEnsemble) {
	rt, da := byProduct[market.RTLMP], byProduct[market.DALMP]
	if rt == nil || da == nil {
		return
	}
	daByTS := make(map[time.Time]float64, len(da.Forecasts))
	for _, f := range da.Forecasts {
		daByTS[f.Timestamp] = f.Stats().StdDev
	}
	for _, f := range rt.Forecasts {
		daStd, ok := daByTS[f.Timestamp]
		if !ok {
			continue
		}
		rtStd := f.Stats().StdDev
		if rtStd < daStd {
			r.AddWarning(validation.CategoryConsistency, fmt.Sprintf("%s: RTLMP volatility (%v) below DALMP volatility (%v)", f.Timestamp.Format("2006-01-02T15:04"), rtStd, daStd))
		}
	}
}

func checkAncillarySum(r *validation.Result, byProduct map[market.Product]*forecast.ForecastEnsemble) {
	present := make([]*forecast.ForecastEnsemble, 0, len(ancillaryProducts))
	for _, p := range ancillaryProducts {
		if ens := byProduct[p]; ens != nil {
			present = append(present, ens)
		}
	}
	if len(present) == 0 {
		return
	}

	n := len(present[0].Forecasts)
	for i := 0; i < n; i++ {
		var sum float64
		var ts time.Time
		for _, ens := range present {
			if i >= len(ens.Forecasts) {
				continue
			}
			sum += ens.Forecasts[i].PointForecast
			ts = ens.Forecasts[i].Timestamp
		}
		if sum < 0 {
			r.AddError(validation.CategoryConsistency, fmt.Sprintf("%v: sum of ancillary point forecasts is negative (%v)", ts, sum))
		}
	}
}
