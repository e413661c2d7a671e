package format

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// jsonRecord is the on-disk JSON shape: one object per row plus
// per-file ensemble metadata, matching the artifact's declared column
// set.
type jsonRecord struct {
	Timestamp           time.Time `json:"timestamp"`
	Product             string    `json:"product"`
	PointForecast       float64   `json:"point_forecast"`
	GenerationTimestamp time.Time `json:"generation_timestamp"`
	IsFallback          bool      `json:"is_fallback"`
	Samples             []float64 `json:"samples"`
}

type jsonFile struct {
	Rows                        []jsonRecord `json:"rows"`
	EnsembleGenerationTimestamp time.Time    `json:"ensemble_generation_timestamp"`
	EnsembleIsFallback          bool         `json:"ensemble_is_fallback"`
	SchemaVersion               string       `json:"schema_version"`
	SampleCount                 int          `json:"sample_count"`
}

// JSONFormat is a stdlib encoding/json codec. No corpus repo layers a
// third-party serialization library on top of JSON (see DESIGN.md), so
// this is the stdlib-justified baseline format.
type JSONFormat struct{}

func (JSONFormat) Name() string { return "json" }
func (JSONFormat) Ext() string  { return "json" }

func (JSONFormat) Write(path string, t *Table) error {
	f := jsonFile{
		Rows:                        make([]jsonRecord, len(t.Timestamp)),
		EnsembleGenerationTimestamp: t.EnsembleGenerationTimestamp,
		EnsembleIsFallback:          t.EnsembleIsFallback,
		SchemaVersion:               t.SchemaVersion,
		SampleCount:                 t.SampleCount(),
	}
	for i := range t.Timestamp {
		f.Rows[i] = jsonRecord{
			Timestamp:           t.Timestamp[i],
			Product:             t.Product[i],
			PointForecast:       t.PointForecast[i],
			GenerationTimestamp: t.GenerationTimestamp[i],
			IsFallback:          t.IsFallback[i],
			Samples:             t.Samples[i],
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("format/json: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("format/json: create: %w", err)
	}
	enc := json.NewEncoder(fh)
	enc.SetIndent("", "")
	if err := enc.Encode(f); err != nil {
		fh.Close()
		os.Remove(tmp)
		return fmt.Errorf("format/json: encode: %w", err)
	}
	if err := fh.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("format/json: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("format/json: rename: %w", err)
	}
	return nil
}

func (JSONFormat) Read(path string) (*Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("format/json: open: %w", err)
	}
	defer fh.Close()

	var f jsonFile
	if err := json.NewDecoder(fh).Decode(&f); err != nil {
		return nil, fmt.Errorf("format/json: decode: %w", err)
	}

	t := &Table{
		Timestamp:                   make([]time.Time, len(f.Rows)),
		Product:                     make([]string, len(f.Rows)),
		PointForecast:               make([]float64, len(f.Rows)),
		GenerationTimestamp:         make([]time.Time, len(f.Rows)),
		IsFallback:                  make([]bool, len(f.Rows)),
		Samples:                     make([][]float64, len(f.Rows)),
		EnsembleGenerationTimestamp: f.EnsembleGenerationTimestamp,
		EnsembleIsFallback:          f.EnsembleIsFallback,
		SchemaVersion:               f.SchemaVersion,
	}
	for i, r := range f.Rows {
		t.Timestamp[i] = r.Timestamp
		t.Product[i] = r.Product
		t.PointForecast[i] = r.PointForecast
		t.GenerationTimestamp[i] = r.GenerationTimestamp
		t.IsFallback[i] = r.IsFallback
		t.Samples[i] = r.Samples
	}
	return t, nil
}

func init() {
	Register(JSONFormat{})
}
