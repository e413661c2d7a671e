package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/fallback"
	"github.com/rozsasarpi/gridcast/internal/featuretable"
	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/ingest"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/modelregistry"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/store/format"
)

type fakeIngester struct {
	err error
}

func (f *fakeIngester) FetchBundle(ctx context.Context) (ingest.Bundle, error) {
	if f.err != nil {
		return ingest.Bundle{}, f.err
	}
	return ingest.Bundle{}, nil
}

type fakeFeatureBuilder struct {
	err error
}

func (f *fakeFeatureBuilder) Build(ctx context.Context, bundle ingest.Bundle, windowStart time.Time) (*featuretable.Table, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := forecast.HorizonHours
	ts := make([]time.Time, n)
	load := make([]float64, n)
	wind := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = windowStart.Add(time.Duration(i) * time.Hour)
		load[i] = 50000
		wind[i] = 15000
	}
	return featuretable.New(ts, map[string][]float64{"load_mw": load, "wind_mw": wind})
}

func fullRegistry(t *testing.T) *modelregistry.Registry {
	t.Helper()
	r := modelregistry.New(t.TempDir())
	for _, p := range market.AllProducts() {
		for h := 0; h < 24; h++ {
			require.NoError(t, r.Register(p, h, []float64{0.001, 0.002}, 10, []string{"load_mw", "wind_mw"}, modelregistry.Metrics{}))
		}
	}
	return r
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"), format.JSONFormat{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newExecutor(t *testing.T, ing Ingester, feat FeatureBuilder) *Executor {
	t.Helper()
	st := openStore(t)
	fe := forecast.NewEngine(fullRegistry(t), zerolog.Nop())
	fb := fallback.NewEngine(st, zerolog.Nop())
	return NewExecutor(ing, feat, fe, st, fb, zerolog.Nop())
}

func TestRunCycleHappyPathStoresAllSixProducts(t *testing.T) {
	x := newExecutor(t, &fakeIngester{}, &fakeFeatureBuilder{})
	windowStart := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)

	results, err := x.RunCycle(context.Background(), windowStart, windowStart)
	require.NoError(t, err)
	require.Len(t, results, len(market.AllProducts()))
	for _, r := range results {
		assert.Equal(t, StateCompleted, r.FinalState)
		assert.False(t, r.IsFallback)
	}

	latest, err := x.Store.GetLatest(market.DALMP)
	require.NoError(t, err)
	assert.Equal(t, windowStart, latest.StartTime)
}

func TestRunCycleIngestFailureRoutesAllProductsToFallback(t *testing.T) {
	x := newExecutor(t, &fakeIngester{err: errors.New("upstream down")}, &fakeFeatureBuilder{})
	windowStart := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)

	results, err := x.RunCycle(context.Background(), windowStart, windowStart)
	require.NoError(t, err)
	require.Len(t, results, len(market.AllProducts()))
	for _, r := range results {
		assert.Equal(t, StateCompletedFallback, r.FinalState)
		assert.True(t, r.IsFallback)
		assert.Equal(t, "ingest", r.FailedStage)
	}
}

func TestRunCycleRejectsConcurrentInvocation(t *testing.T) {
	x := newExecutor(t, &fakeIngester{}, &fakeFeatureBuilder{})
	windowStart := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)

	x.mu.Lock()
	x.running = true
	x.mu.Unlock()

	_, err := x.RunCycle(context.Background(), windowStart, windowStart)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestRunCycleReleasesGuardAfterCompletion(t *testing.T) {
	x := newExecutor(t, &fakeIngester{}, &fakeFeatureBuilder{})
	windowStart := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)

	_, err := x.RunCycle(context.Background(), windowStart, windowStart)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := x.RunCycle(context.Background(), windowStart.AddDate(0, 0, 1), windowStart.AddDate(0, 0, 1))
		assert.NoError(t, err)
	}()
	wg.Wait()
}

func TestParallelForecastStageProducesAllSixEnsembles(t *testing.T) {
	x := newExecutor(t, &fakeIngester{}, &fakeFeatureBuilder{})
	x.ParallelForecast = true
	windowStart := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC)

	results, err := x.RunCycle(context.Background(), windowStart, windowStart)
	require.NoError(t, err)
	require.Len(t, results, len(market.AllProducts()))
	for _, r := range results {
		assert.Equal(t, StateCompleted, r.FinalState)
	}
}
