// Package residuals supplies forecast.HistoricalResiduals by
// reconciling the realized prices a forecast cycle ingests against the
// Forecast Store's previously written point forecasts for the same
// (product, timestamp) — the concrete source of the residual history
// uncertainty.Derive's historical_residuals method projects against.
package residuals

import (
	"sync"
	"time"

	"github.com/rozsasarpi/gridcast/internal/ingest"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store"
)

// maxHistory bounds how many reconciled observations feed a single
// (product, hour) derivation, keeping the residual window recent rather
// than averaging over the store's entire retained history.
const maxHistory = 30

// Provider implements forecast.HistoricalResiduals against a Store: it
// holds the current cycle's ingest Bundle (set once per cycle via
// SetBundle) and, on each Residuals/PercentErrors call, matches that
// bundle's realized historical prices against previously stored,
// non-fallback forecasts for the requested (product, hour-of-day).
type Provider struct {
	store *store.Store

	mu     sync.Mutex
	bundle ingest.Bundle
}

// New constructs a Provider against st. It starts with an empty bundle,
// so Residuals/PercentErrors return nil until the first SetBundle call —
// uncertainty.Derive degrades to its no-history defaults in that case.
func New(st *store.Store) *Provider {
	return &Provider{store: st}
}

// SetBundle installs the bundle fetched by the current cycle's ingest
// stage. Called once per RunCycle, before the forecast stage runs.
func (p *Provider) SetBundle(bundle ingest.Bundle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bundle = bundle
}

// Residuals returns point-space (actual - predicted) residuals for
// product at hour-of-day, oldest first.
func (p *Provider) Residuals(product market.Product, hour int) []float64 {
	return p.reconcile(product, hour, false)
}

// PercentErrors returns (actual-predicted)/actual residuals for product
// at hour-of-day, oldest first.
func (p *Provider) PercentErrors(product market.Product, hour int) []float64 {
	return p.reconcile(product, hour, true)
}

func (p *Provider) reconcile(product market.Product, hour int, percent bool) []float64 {
	p.mu.Lock()
	bundle := p.bundle
	p.mu.Unlock()

	actuals := make(map[time.Time]float64, len(bundle.HistoricalPrices))
	for _, row := range bundle.HistoricalPrices {
		if row.Product == string(product) {
			actuals[row.Timestamp] = row.Price
		}
	}
	if len(actuals) == 0 {
		return nil
	}

	var out []float64
	for _, e := range p.store.Index.Entries() {
		if e.Product != product || e.IsFallback {
			continue
		}
		ens, err := p.store.ReadEntry(e)
		if err != nil {
			continue
		}
		for _, f := range ens.Forecasts {
			if f.Timestamp.Hour() != hour {
				continue
			}
			actual, ok := actuals[f.Timestamp]
			if !ok {
				continue
			}
			if percent {
				if actual == 0 {
					continue
				}
				out = append(out, (actual-f.PointForecast)/actual)
			} else {
				out = append(out, actual-f.PointForecast)
			}
		}
	}
	if len(out) > maxHistory {
		out = out[len(out)-maxHistory:]
	}
	return out
}
