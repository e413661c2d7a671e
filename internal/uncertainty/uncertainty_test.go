package uncertainty

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rozsasarpi/gridcast/internal/market"
)

func TestHistoricalResidualsNoHistoryFallsBackTo10Percent(t *testing.T) {
	res := Derive(HistoricalResiduals, Input{Product: market.DALMP, Point: 40})
	assert.InDelta(t, 40, res.Mean, 1e-9)
	assert.InDelta(t, 4, res.StdDev, 1e-9) // 0.10*40 * adjustment(1.0)
}

func TestHistoricalResidualsWithHistory(t *testing.T) {
	res := Derive(HistoricalResiduals, Input{
		Product:   market.RTLMP,
		Point:     50,
		Residuals: []float64{1, -1, 2, -2},
	})
	assert.InDelta(t, 50, res.Mean, 1e-9) // mean residual ~ 0
	assert.Greater(t, res.StdDev, 0.0)
}

func TestFixedValueUsesProductConstant(t *testing.T) {
	res := Derive(FixedValue, Input{Product: market.RRS, Point: 10})
	assert.InDelta(t, 2.5*0.7, res.StdDev, 1e-9)
}

func TestUnknownMethodFallsBackToHistoricalResiduals(t *testing.T) {
	res := Derive(Method("bogus"), Input{Product: market.DALMP, Point: 30})
	assert.True(t, res.UsedFallback)
	assert.InDelta(t, 3, res.StdDev, 1e-9)
}

func TestAdaptiveNeverShrinksStdDev(t *testing.T) {
	flat := Derive(Adaptive, Input{Product: market.DALMP, Point: 40, Residuals: []float64{1, 1, 1, 1, 1, 1}})
	growing := Derive(Adaptive, Input{Product: market.DALMP, Point: 40, Residuals: []float64{1, 1, 1, 2, 2, 3}})
	assert.GreaterOrEqual(t, growing.StdDev, flat.StdDev)
}

func TestProductAdjustmentFactorApplied(t *testing.T) {
	da := Derive(FixedValue, Input{Product: market.DALMP, Point: 1})
	rt := Derive(FixedValue, Input{Product: market.RTLMP, Point: 1})
	assert.InDelta(t, 5*1.0, da.StdDev, 1e-9)
	assert.InDelta(t, 8*1.2, rt.StdDev, 1e-9)
}
