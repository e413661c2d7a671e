// Package ingest implements the three upstream feed clients: load
// forecast, historical prices, and generation forecast. All three are
// fetched over HTTP(S) with API-key authentication by one Client
// (client.go), grounded on the teacher's per-upstream client shape
// (internal/clients/exchangerate, internal/clients/alphavantage): a small
// struct holding the config, an *http.Client, and a zerolog child logger.
package ingest

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// LoadForecastRow is one row of the load-forecast feed.
type LoadForecastRow struct {
	Timestamp time.Time `validate:"required"`
	LoadMW    float64   `validate:"gte=0"`
	Region    string    `validate:"required"`
}

// HistoricalPriceRow is one row of the historical-prices feed.
type HistoricalPriceRow struct {
	Timestamp time.Time `validate:"required"`
	Product   string    `validate:"required"`
	Price     float64   // energy prices may be zero or negative, so Price carries no validate tag
	Node      string    `validate:"required"`
}

// GenerationForecastRow is one row of the generation-forecast feed.
type GenerationForecastRow struct {
	Timestamp    time.Time `validate:"required"`
	FuelType     string    `validate:"required"`
	GenerationMW float64   `validate:"gte=0"`
	Region       string    `validate:"required"`
}

// Bundle is the {load_fc, hist_px, gen_fc} triple the ingest
// collaborator surfaces to the pipeline.
type Bundle struct {
	LoadForecast       []LoadForecastRow
	HistoricalPrices   []HistoricalPriceRow
	GenerationForecast []GenerationForecastRow
}
