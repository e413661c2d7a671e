// Package modelregistry resolves a (product, hour) key to a trained
// linear model, its feature-name contract, and its validation metrics.
// Model entries are loaded at process start, owned by the registry, and
// immutable at runtime; mutation happens only through the explicit
// Register/Delete operations.
package modelregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rozsasarpi/gridcast/internal/market"
)

// Metrics is the validation-metrics bag carried alongside a model.
type Metrics struct {
	RMSE      float64   `msgpack:"rmse"`
	R2        float64   `msgpack:"r2"`
	MAE       float64   `msgpack:"mae"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// Entry is an opaque coefficient-plus-intercept linear model artifact.
type Entry struct {
	Product      market.Product `msgpack:"product"`
	Hour         int            `msgpack:"hour"`
	Weights      []float64      `msgpack:"weights"`
	Intercept    float64        `msgpack:"intercept"`
	FeatureNames []string       `msgpack:"feature_names"`
	Metrics      Metrics        `msgpack:"metrics"`
}

// Predict computes y = X . w + b for a feature row already projected to
// match e.FeatureNames (see internal/featuretable.Table.RowAt).
func (e *Entry) Predict(features []float64) (float64, error) {
	if len(features) != len(e.Weights) {
		return 0, fmt.Errorf("modelregistry: feature vector has %d values, model expects %d", len(features), len(e.Weights))
	}
	y := e.Intercept
	for i, w := range e.Weights {
		y += w * features[i]
	}
	return y, nil
}

type key struct {
	product market.Product
	hour    int
}

// Registry is the in-memory, mutex-guarded model store with on-disk
// msgpack persistence under <dir>/<product>_<hour>.msgpack.
type Registry struct {
	mu      sync.RWMutex
	entries map[key]*Entry
	dir     string
	once    sync.Once
}

// New creates a registry rooted at dir (typically <store-root>/models).
func New(dir string) *Registry {
	return &Registry{
		entries: make(map[key]*Entry),
		dir:     dir,
	}
}

// Initialize loads all models from disk. Idempotent: repeated calls
// after the first are no-ops.
func (r *Registry) Initialize() error {
	var loadErr error
	r.once.Do(func() {
		loadErr = r.LoadAll()
	})
	return loadErr
}

// Register inserts (or replaces) a model for (product, hour), validating
// the key and persisting it to disk via rewrite-then-rename.
func (r *Registry) Register(product market.Product, hour int, weights []float64, intercept float64, featureNames []string, metrics Metrics) error {
	if !product.IsValid() {
		return fmt.Errorf("modelregistry: invalid product %q", product)
	}
	if hour < 0 || hour > 23 {
		return fmt.Errorf("modelregistry: invalid hour %d", hour)
	}

	entry := &Entry{
		Product:      product,
		Hour:         hour,
		Weights:      append([]float64(nil), weights...),
		Intercept:    intercept,
		FeatureNames: append([]string(nil), featureNames...),
		Metrics:      metrics,
	}

	if err := r.persist(entry); err != nil {
		return err
	}

	r.mu.Lock()
	r.entries[key{product, hour}] = entry
	r.mu.Unlock()
	return nil
}

// Get returns the model, feature names, and metrics for (product, hour),
// or (nil, nil, Metrics{}, false) when absent — it never raises for a
// simple miss.
func (r *Registry) Get(product market.Product, hour int) (*Entry, []string, Metrics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key{product, hour}]
	if !ok {
		return nil, nil, Metrics{}, false
	}
	return e, e.FeatureNames, e.Metrics, true
}

// Has reports whether a model exists for (product, hour).
func (r *Registry) Has(product market.Product, hour int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key{product, hour}]
	return ok
}

// List returns every registered (product, hour) key, sorted for
// deterministic output.
func (r *Registry) List() []struct {
	Product market.Product
	Hour    int
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]struct {
		Product market.Product
		Hour    int
	}, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, struct {
			Product market.Product
			Hour    int
		}{k.product, k.hour})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Product != out[j].Product {
			return out[i].Product < out[j].Product
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// Delete removes a model from memory and disk, reporting whether it was
// present.
func (r *Registry) Delete(product market.Product, hour int) bool {
	r.mu.Lock()
	k := key{product, hour}
	_, existed := r.entries[k]
	delete(r.entries, k)
	r.mu.Unlock()

	if existed {
		_ = os.Remove(r.pathFor(product, hour))
	}
	return existed
}

// SaveAll writes every in-memory entry to disk.
func (r *Registry) SaveAll() error {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		if err := r.persist(e); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll scans the models directory, parsing every <product>_<hour>.msgpack
// file, and replaces the in-memory set.
func (r *Registry) LoadAll() error {
	entries := make(map[key]*Entry)

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("modelregistry: failed to create models dir: %w", err)
	}

	files, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("modelregistry: failed to scan models dir: %w", err)
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".msgpack" {
			continue
		}
		path := filepath.Join(r.dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("modelregistry: failed to read %s: %w", path, err)
		}
		var e Entry
		if err := msgpack.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("modelregistry: failed to decode %s: %w", path, err)
		}
		entries[key{e.Product, e.Hour}] = &e
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return nil
}

func (r *Registry) pathFor(product market.Product, hour int) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%d.msgpack", product, hour))
}

// persist rewrites a single entry to disk atomically (write to .tmp, then
// rename), matching the store's own atomicity discipline.
func (r *Registry) persist(e *Entry) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("modelregistry: failed to create models dir: %w", err)
	}

	data, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("modelregistry: failed to encode model: %w", err)
	}

	finalPath := r.pathFor(e.Product, e.Hour)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("modelregistry: failed to write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("modelregistry: failed to rename %s -> %s: %w", tmpPath, finalPath, err)
	}
	return nil
}
