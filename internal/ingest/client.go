package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/timeutil"
)

// FeedConfig is one upstream feed's URL and API key.
type FeedConfig struct {
	URL    string
	APIKey string
}

// Config groups the three upstream feed configs.
type Config struct {
	LoadForecast       FeedConfig
	HistoricalPrices   FeedConfig
	GenerationForecast FeedConfig
}

// Client fetches and validates the three upstream feeds, normalizing
// every timestamp to America/Chicago.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
	loc  *time.Location
}

// NewClient constructs a Client. loc is typically timeutil.ChicagoZone's
// loaded location.
func NewClient(cfg Config, loc *time.Location, log zerolog.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log.With().Str("component", "ingest_client").Logger(),
		loc:  loc,
	}
}

// FetchBundle fetches and validates all three feeds, retrying each up to
// retryAttempts times on transport failure.
func (c *Client) FetchBundle(ctx context.Context) (Bundle, error) {
	var bundle Bundle

	if err := withRetry(ctx, func() error {
		rows, err := fetchRows[LoadForecastRow](ctx, c, c.cfg.LoadForecast, "load_forecast")
		if err != nil {
			return err
		}
		bundle.LoadForecast = rows
		return nil
	}); err != nil {
		return Bundle{}, fmt.Errorf("ingest: load_forecast: %w", err)
	}

	if err := withRetry(ctx, func() error {
		rows, err := fetchRows[HistoricalPriceRow](ctx, c, c.cfg.HistoricalPrices, "historical_prices")
		if err != nil {
			return err
		}
		bundle.HistoricalPrices = rows
		return nil
	}); err != nil {
		return Bundle{}, fmt.Errorf("ingest: historical_prices: %w", err)
	}

	if err := withRetry(ctx, func() error {
		rows, err := fetchRows[GenerationForecastRow](ctx, c, c.cfg.GenerationForecast, "generation_forecast")
		if err != nil {
			return err
		}
		bundle.GenerationForecast = rows
		return nil
	}); err != nil {
		return Bundle{}, fmt.Errorf("ingest: generation_forecast: %w", err)
	}

	return bundle, nil
}

// rowTimestamp abstracts over the three row types' common need to be
// localized and validated.
type rowTimestamp interface {
	LoadForecastRow | HistoricalPriceRow | GenerationForecastRow
}

func fetchRows[T rowTimestamp](ctx context.Context, c *Client, feed FeedConfig, name string) ([]T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", feed.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", name, resp.StatusCode)
	}

	var raw []T
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	out := make([]T, 0, len(raw))
	for i := range raw {
		if err := validate.Struct(raw[i]); err != nil {
			c.log.Warn().Err(err).Str("feed", name).Int("row", i).Msg("rejecting row failing schema")
			continue
		}
		localizeRow(&raw[i], c.loc)
		out = append(out, raw[i])
	}
	return out, nil
}

// localizeRow re-homes a row's Timestamp field into loc, via a type
// switch over the three concrete row types (generics can't address a
// shared field by name across distinct struct types).
func localizeRow(row interface{}, loc *time.Location) {
	switch r := row.(type) {
	case *LoadForecastRow:
		r.Timestamp = timeutil.Localize(r.Timestamp, loc)
	case *HistoricalPriceRow:
		r.Timestamp = timeutil.Localize(r.Timestamp, loc)
	case *GenerationForecastRow:
		r.Timestamp = timeutil.Localize(r.Timestamp, loc)
	}
}
