package modelregistry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/market"
)

func TestRegisterGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	err := r.Register(market.DALMP, 7, []float64{1.5, -0.5}, 2.0, []string{"load_mw", "wind_mw"}, Metrics{RMSE: 1.1, R2: 0.9, MAE: 0.8, CreatedAt: time.Now()})
	require.NoError(t, err)

	entry, features, metrics, ok := r.Get(market.DALMP, 7)
	require.True(t, ok)
	assert.Equal(t, []string{"load_mw", "wind_mw"}, features)
	assert.InDelta(t, 0.9, metrics.R2, 1e-9)

	y, err := entry.Predict([]float64{10, 4})
	require.NoError(t, err)
	assert.InDelta(t, 1.5*10+(-0.5)*4+2.0, y, 1e-9)
}

func TestGetMissingReturnsZeroValuesNotError(t *testing.T) {
	r := New(t.TempDir())
	entry, features, _, ok := r.Get(market.RTLMP, 3)
	assert.False(t, ok)
	assert.Nil(t, entry)
	assert.Nil(t, features)
}

func TestInitializeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)
	require.NoError(t, r.Initialize())
	require.NoError(t, r.Register(market.RegUp, 0, []float64{1}, 0, []string{"x"}, Metrics{}))
	require.NoError(t, r.Initialize()) // second call must not reload and wipe the new entry
	assert.True(t, r.Has(market.RegUp, 0))
}

func TestLoadAllRoundTripsAcrossRegistryInstances(t *testing.T) {
	dir := t.TempDir()
	r1 := New(dir)
	require.NoError(t, r1.Register(market.NSRS, 12, []float64{2, 3}, 1, []string{"a", "b"}, Metrics{RMSE: 0.5}))

	r2 := New(dir)
	require.NoError(t, r2.LoadAll())
	entry, _, _, ok := r2.Get(market.NSRS, 12)
	require.True(t, ok)
	assert.Equal(t, []float64{2, 3}, entry.Weights)
}

func TestDeleteRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)
	require.NoError(t, r.Register(market.RRS, 5, []float64{1}, 0, []string{"x"}, Metrics{}))
	assert.True(t, r.Delete(market.RRS, 5))
	assert.False(t, r.Has(market.RRS, 5))
	assert.False(t, r.Delete(market.RRS, 5))
}

func TestListIsSortedByProductThenHour(t *testing.T) {
	r := New(t.TempDir())
	require.NoError(t, r.Register(market.RTLMP, 5, []float64{1}, 0, []string{"x"}, Metrics{}))
	require.NoError(t, r.Register(market.DALMP, 10, []float64{1}, 0, []string{"x"}, Metrics{}))
	require.NoError(t, r.Register(market.DALMP, 2, []float64{1}, 0, []string{"x"}, Metrics{}))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, market.DALMP, list[0].Product)
	assert.Equal(t, 2, list[0].Hour)
	assert.Equal(t, market.DALMP, list[1].Product)
	assert.Equal(t, 10, list[1].Hour)
	assert.Equal(t, market.RTLMP, list[2].Product)
}
