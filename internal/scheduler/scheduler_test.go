package scheduler

import (
	"context"
	"path/filepath"
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
	"github.com/rozsasarpi/gridcast/internal/pipeline"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/store/format"
	"github.com/rozsasarpi/gridcast/internal/timeutil"
)

type stubIngester struct{}

func (stubIngester) FetchBundle(ctx context.Context) (ingest.Bundle, error) {
	return ingest.Bundle{}, nil
}

type stubFeatureBuilder struct{}

func (stubFeatureBuilder) Build(ctx context.Context, bundle ingest.Bundle, windowStart time.Time) (*featuretable.Table, error) {
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

func newExecutor(t *testing.T) *pipeline.Executor {
	t.Helper()
	r := modelregistry.New(t.TempDir())
	for _, p := range market.AllProducts() {
		for h := 0; h < 24; h++ {
			require.NoError(t, r.Register(p, h, []float64{0.001, 0.002}, 10, []string{"load_mw", "wind_mw"}, modelregistry.Metrics{}))
		}
	}
	fe := forecast.NewEngine(r, zerolog.Nop())
	st, err := store.Open(filepath.Join(t.TempDir(), "store"), format.JSONFormat{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	fb := fallback.NewEngine(st, zerolog.Nop())
	return pipeline.NewExecutor(stubIngester{}, stubFeatureBuilder{}, fe, st, fb, zerolog.Nop())
}

func TestRunNowExecutesSynchronouslyAndRecordsCompletedJob(t *testing.T) {
	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	s := New(newExecutor(t), loc, zerolog.Nop())

	job, err := s.RunNow()
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)

	completed := s.Registry.ListByStatus(StatusCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, job.ID, completed[0].ID)
}

func TestStartIsIdempotent(t *testing.T) {
	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	s := New(newExecutor(t), loc, zerolog.Nop())

	assert.True(t, s.Start())
	assert.False(t, s.Start())
	assert.True(t, s.Stop())
}

func TestStopIsIdempotent(t *testing.T) {
	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	s := New(newExecutor(t), loc, zerolog.Nop())

	require.True(t, s.Start())
	assert.True(t, s.Stop())
	assert.False(t, s.Stop())
}

func TestStopWithoutStartReturnsFalse(t *testing.T) {
	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	s := New(newExecutor(t), loc, zerolog.Nop())
	assert.False(t, s.Stop())
}

func TestCatchUpMissedTriggerFiresWithinGraceWindow(t *testing.T) {
	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	s := New(newExecutor(t), loc, zerolog.Nop())
	frozen := time.Date(2023, 6, 1, 7, 0, 30, 0, loc) // 30s after 07:00, within the 60s grace
	s.Now = func() time.Time { return frozen }

	require.True(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(s.Registry.ListByStatus(StatusCompleted)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCatchUpMissedTriggerSkipsOutsideGraceWindow(t *testing.T) {
	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	s := New(newExecutor(t), loc, zerolog.Nop())
	frozen := time.Date(2023, 6, 1, 7, 5, 0, 0, loc) // 5 minutes after 07:00, past the 60s grace
	s.Now = func() time.Time { return frozen }

	require.True(t, s.Start())
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, s.Registry.ListByStatus(StatusCompleted), 0)
}

func TestJobRegistryRejectsInvalidTransition(t *testing.T) {
	r := NewRegistry()
	job := NewJob(jobTypeForecast, time.Now(), nil)
	r.Register(job)

	err := r.UpdateStatus(job.ID, StatusCompleted, nil) // pending -> completed is not allowed
	assert.Error(t, err)
}

func TestMonitorTimesOutLongRunningJob(t *testing.T) {
	reg := NewRegistry()
	job := NewJob(jobTypeForecast, time.Now(), nil)
	reg.Register(job)
	require.NoError(t, reg.UpdateStatus(job.ID, StatusRunning, nil))

	m := NewMonitor(reg, zerolog.Nop())
	m.SweepInterval = 20 * time.Millisecond
	m.Watch(job.ID, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		current, ok := reg.Get(job.ID)
		return ok && current.Status == StatusTimeout
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop()
}
