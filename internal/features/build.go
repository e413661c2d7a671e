// Package features provides the default pipeline.FeatureBuilder: a
// basic feature set derived directly from the ingest Bundle. Real
// feature engineering against a specific trained model's feature-name
// contract is this module's explicit Non-goal (models are trained
// externally); this builder exists so the pipeline has a concrete,
// runnable collaborator to wire rather than only the interface.
package features

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rozsasarpi/gridcast/internal/featuretable"
	"github.com/rozsasarpi/gridcast/internal/ingest"
)

// Builder turns an ingest Bundle into a Table keyed by the bundle's own
// timestamps: total load, generation by fuel type (and its total), and
// the historical price per product at that timestamp (the last row wins
// when a product has several prices at one timestamp).
type Builder struct{}

// NewBuilder constructs a Builder. It holds no state.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build implements pipeline.FeatureBuilder.
func (b *Builder) Build(ctx context.Context, bundle ingest.Bundle, windowStart time.Time) (*featuretable.Table, error) {
	rows := make(map[time.Time]map[string]float64)
	row := func(ts time.Time) map[string]float64 {
		r, ok := rows[ts]
		if !ok {
			r = make(map[string]float64)
			rows[ts] = r
		}
		return r
	}

	for _, r := range bundle.LoadForecast {
		row(r.Timestamp)["load_mw"] += r.LoadMW
	}
	for _, r := range bundle.GenerationForecast {
		rr := row(r.Timestamp)
		rr["gen_mw_total"] += r.GenerationMW
		rr["gen_mw_"+strings.ToLower(r.FuelType)] += r.GenerationMW
	}
	for _, r := range bundle.HistoricalPrices {
		row(r.Timestamp)["price_"+strings.ToLower(r.Product)] = r.Price
	}

	timestamps := make([]time.Time, 0, len(rows))
	for ts := range rows {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	names := make(map[string]struct{})
	for _, r := range rows {
		for name := range r {
			names[name] = struct{}{}
		}
	}
	columns := make(map[string][]float64, len(names))
	for name := range names {
		col := make([]float64, len(timestamps))
		for i, ts := range timestamps {
			col[i] = rows[ts][name]
		}
		columns[name] = col
	}

	return featuretable.New(timestamps, columns)
}
