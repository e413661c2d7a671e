package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/store/format"
	"github.com/rozsasarpi/gridcast/internal/timeutil"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	st, err := store.Open(t.TempDir(), format.JSONFormat{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := New(Config{
		Host:    "127.0.0.1",
		Port:    0,
		Store:   st,
		Loc:     loc,
		Log:     zerolog.Nop(),
		DataDir: filepath.Dir(st.Root),
	})
	return s, st
}

func sampleEnsemble(t *testing.T, product market.Product, start time.Time) *forecast.ForecastEnsemble {
	t.Helper()
	samples := make([]float64, forecast.SampleCount)
	for i := range samples {
		samples[i] = 30
	}
	forecasts := make([]*forecast.ProbabilisticForecast, forecast.HorizonHours)
	for i := range forecasts {
		f, err := forecast.NewProbabilisticForecast(start.Add(time.Duration(i)*time.Hour), product, 30, samples, start, false)
		require.NoError(t, err)
		forecasts[i] = f
	}
	ens, err := forecast.NewForecastEnsemble(product, start, forecasts, start)
	require.NoError(t, err)
	return ens
}

func TestHandleHealthReturnsHealthy(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleProductsListsAllSix(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Products []string `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Products, 6)
}

func TestHandleGetLatestForecastNotFound(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/forecasts/latest/DALMP", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetLatestForecastReturnsStoredEnsemble(t *testing.T) {
	s, st := testServer(t)
	start := time.Date(2026, 7, 30, 7, 0, 0, 0, time.UTC)
	ens := sampleEnsemble(t, market.DALMP, start)
	_, err := st.Put(ens)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/forecasts/latest/DALMP", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestHandleGetLatestForecastUnknownProductReturnsBadRequest(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/forecasts/latest/NOT_A_PRODUCT", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetRangeReturnsCountOfMatchingEnsembles(t *testing.T) {
	s, st := testServer(t)
	start := time.Date(2026, 7, 30, 7, 0, 0, 0, time.UTC)
	ens := sampleEnsemble(t, market.RegUp, start)
	_, err := st.Put(ens)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/forecasts/range/2026-07-29/2026-07-31/RegUp", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestHandleStorageStatusReportsArtifactCount(t *testing.T) {
	s, st := testServer(t)
	start := time.Date(2026, 7, 30, 7, 0, 0, 0, time.UTC)
	ens := sampleEnsemble(t, market.RTLMP, start)
	_, err := st.Put(ens)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/storage/status", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		TotalArtifacts int `json:"total_artifacts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.TotalArtifacts)
}

func TestBroadcasterPublishReachesSubscriber(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "cycle_completed"})

	select {
	case ev := <-ch:
		assert.Equal(t, "cycle_completed", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
