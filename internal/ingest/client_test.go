package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozsasarpi/gridcast/internal/timeutil"
)

func TestFetchBundleRejectsInvalidRowsButKeepsValidOnes(t *testing.T) {
	loadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		rows := []map[string]interface{}{
			{"Timestamp": "2023-06-01T07:00:00Z", "LoadMW": 50000.0, "Region": "north"},
			{"Timestamp": "2023-06-01T08:00:00Z", "LoadMW": -5.0, "Region": "north"}, // invalid: negative
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer loadSrv.Close()

	histSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]HistoricalPriceRow{})
	}))
	defer histSrv.Close()

	genSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]GenerationForecastRow{})
	}))
	defer genSrv.Close()

	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	client := NewClient(Config{
		LoadForecast:       FeedConfig{URL: loadSrv.URL, APIKey: "secret"},
		HistoricalPrices:   FeedConfig{URL: histSrv.URL},
		GenerationForecast: FeedConfig{URL: genSrv.URL},
	}, loc, zerolog.Nop())

	bundle, err := client.FetchBundle(context.Background())
	require.NoError(t, err)
	require.Len(t, bundle.LoadForecast, 1)
	assert.Equal(t, "north", bundle.LoadForecast[0].Region)
	assert.Equal(t, loc, bundle.LoadForecast[0].Timestamp.Location())
}

func TestFetchBundleRetriesOnTransportFailure(t *testing.T) {
	attempts := 0
	loadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]LoadForecastRow{{Timestamp: time.Now(), LoadMW: 100, Region: "south"}})
	}))
	defer loadSrv.Close()

	histSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]HistoricalPriceRow{})
	}))
	defer histSrv.Close()
	genSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]GenerationForecastRow{})
	}))
	defer genSrv.Close()

	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)
	client := NewClient(Config{
		LoadForecast:       FeedConfig{URL: loadSrv.URL},
		HistoricalPrices:   FeedConfig{URL: histSrv.URL},
		GenerationForecast: FeedConfig{URL: genSrv.URL},
	}, loc, zerolog.Nop())

	bundle, err := client.FetchBundle(context.Background())
	require.NoError(t, err)
	assert.Len(t, bundle.LoadForecast, 1)
	assert.GreaterOrEqual(t, attempts, 2)
}
