package format

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CSVFormat is a stdlib encoding/csv codec, matching the required
// column set literally (one sample_NNN column per sample). No corpus
// repo layers a CSV library on top of encoding/csv (even
// rxtech-lab-argo-trading's own writer is stdlib) — see DESIGN.md.
type CSVFormat struct{}

func (CSVFormat) Name() string { return "csv" }
func (CSVFormat) Ext() string  { return "csv" }

const csvTimeLayout = time.RFC3339Nano

func (CSVFormat) Write(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("format/csv: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("format/csv: create: %w", err)
	}
	w := csv.NewWriter(fh)

	n := t.SampleCount()
	header := append([]string{"timestamp", "product", "point_forecast", "generation_timestamp", "is_fallback"}, sampleColumnNames(n)...)
	header = append(header, "ensemble_generation_timestamp", "ensemble_is_fallback", "schema_version")
	if err := w.Write(header); err != nil {
		fh.Close()
		os.Remove(tmp)
		return fmt.Errorf("format/csv: write header: %w", err)
	}

	for i := range t.Timestamp {
		row := []string{
			t.Timestamp[i].Format(csvTimeLayout),
			t.Product[i],
			strconv.FormatFloat(t.PointForecast[i], 'g', -1, 64),
			t.GenerationTimestamp[i].Format(csvTimeLayout),
			strconv.FormatBool(t.IsFallback[i]),
		}
		for _, s := range t.Samples[i] {
			row = append(row, strconv.FormatFloat(s, 'g', -1, 64))
		}
		row = append(row,
			t.EnsembleGenerationTimestamp.Format(csvTimeLayout),
			strconv.FormatBool(t.EnsembleIsFallback),
			t.SchemaVersion,
		)
		if err := w.Write(row); err != nil {
			fh.Close()
			os.Remove(tmp)
			return fmt.Errorf("format/csv: write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fh.Close()
		os.Remove(tmp)
		return fmt.Errorf("format/csv: flush: %w", err)
	}
	if err := fh.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("format/csv: close: %w", err)
	}
	return os.Rename(tmp, path)
}

func (CSVFormat) Read(path string) (*Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("format/csv: open: %w", err)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("format/csv: read header: %w", err)
	}
	sampleCount := len(header) - 8 // 5 leading + 3 trailing fixed columns
	if sampleCount < 0 {
		return nil, fmt.Errorf("format/csv: malformed header (%d columns)", len(header))
	}

	t := &Table{SchemaVersion: ""}
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		ts, perr := time.Parse(csvTimeLayout, rec[0])
		if perr != nil {
			return nil, fmt.Errorf("format/csv: parse timestamp: %w", perr)
		}
		point, perr := strconv.ParseFloat(rec[2], 64)
		if perr != nil {
			return nil, fmt.Errorf("format/csv: parse point_forecast: %w", perr)
		}
		genTS, perr := time.Parse(csvTimeLayout, rec[3])
		if perr != nil {
			return nil, fmt.Errorf("format/csv: parse generation_timestamp: %w", perr)
		}
		isFallback, perr := strconv.ParseBool(rec[4])
		if perr != nil {
			return nil, fmt.Errorf("format/csv: parse is_fallback: %w", perr)
		}
		samples := make([]float64, sampleCount)
		for i := 0; i < sampleCount; i++ {
			s, perr := strconv.ParseFloat(rec[5+i], 64)
			if perr != nil {
				return nil, fmt.Errorf("format/csv: parse sample %d: %w", i, perr)
			}
			samples[i] = s
		}

		ensGenTS, _ := time.Parse(csvTimeLayout, rec[5+sampleCount])
		ensIsFallback, _ := strconv.ParseBool(rec[6+sampleCount])
		schemaVersion := rec[7+sampleCount]

		t.Timestamp = append(t.Timestamp, ts)
		t.Product = append(t.Product, rec[1])
		t.PointForecast = append(t.PointForecast, point)
		t.GenerationTimestamp = append(t.GenerationTimestamp, genTS)
		t.IsFallback = append(t.IsFallback, isFallback)
		t.Samples = append(t.Samples, samples)
		t.EnsembleGenerationTimestamp = ensGenTS
		t.EnsembleIsFallback = ensIsFallback
		t.SchemaVersion = schemaVersion
	}
	return t, nil
}

func sampleColumnNames(n int) []string {
	if n == 0 {
		return nil
	}
	width := len(fmt.Sprintf("%d", n))
	out := make([]string, n)
	for i := 1; i <= n; i++ {
		out[i-1] = fmt.Sprintf("sample_%0*d", width, i)
	}
	return out
}

func init() {
	Register(CSVFormat{})
}
