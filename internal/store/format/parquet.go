package format

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// ParquetFormat writes/reads Parquet via an in-memory DuckDB connection,
// grounded on rxtech-lab-argo-trading's parquet_helper.go ("CREATE TABLE
// ... AS SELECT ... FROM read_parquet(...)" / "COPY ... TO ... (FORMAT
// PARQUET)"). DuckDB is the only Parquet-capable dependency anywhere in
// the retrieved corpus.
type ParquetFormat struct{}

func (ParquetFormat) Name() string { return "parquet" }
func (ParquetFormat) Ext() string  { return "parquet" }

const parquetTimeLayout = "2006-01-02 15:04:05.999999999"

func (ParquetFormat) Write(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("format/parquet: mkdir: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("format/parquet: open duckdb: %w", err)
	}
	defer db.Close()

	n := t.SampleCount()
	cols := append([]string{"timestamp TIMESTAMP", "product VARCHAR", "point_forecast DOUBLE", "generation_timestamp TIMESTAMP", "is_fallback BOOLEAN"}, sampleColumnDefs(n)...)
	cols = append(cols, "ensemble_generation_timestamp TIMESTAMP", "ensemble_is_fallback BOOLEAN", "schema_version VARCHAR")

	if _, err := db.Exec(fmt.Sprintf("CREATE TABLE artifact (%s)", strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("format/parquet: create table: %w", err)
	}

	placeholders := make([]string, 0, 8+n)
	for i := 0; i < 8+n; i++ {
		placeholders = append(placeholders, "?")
	}
	insertSQL := fmt.Sprintf("INSERT INTO artifact VALUES (%s)", strings.Join(placeholders, ", "))
	stmt, err := db.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("format/parquet: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range t.Timestamp {
		args := make([]interface{}, 0, 8+n)
		args = append(args,
			t.Timestamp[i].Format(parquetTimeLayout),
			t.Product[i],
			t.PointForecast[i],
			t.GenerationTimestamp[i].Format(parquetTimeLayout),
			t.IsFallback[i],
		)
		for _, s := range t.Samples[i] {
			args = append(args, s)
		}
		args = append(args,
			t.EnsembleGenerationTimestamp.Format(parquetTimeLayout),
			t.EnsembleIsFallback,
			t.SchemaVersion,
		)
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("format/parquet: insert row %d: %w", i, err)
		}
	}

	tmp := path + ".tmp"
	if _, err := db.Exec(fmt.Sprintf("COPY artifact TO '%s' (FORMAT PARQUET)", tmp)); err != nil {
		return fmt.Errorf("format/parquet: copy to parquet: %w", err)
	}
	return os.Rename(tmp, path)
}

func (ParquetFormat) Read(path string) (*Table, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("format/parquet: open duckdb: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(fmt.Sprintf("SELECT * FROM read_parquet('%s') ORDER BY timestamp", path))
	if err != nil {
		return nil, fmt.Errorf("format/parquet: read_parquet: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("format/parquet: columns: %w", err)
	}
	sampleCount := len(columns) - 8

	t := &Table{}
	for rows.Next() {
		scanArgs := make([]interface{}, len(columns))
		raw := make([]interface{}, len(columns))
		for i := range raw {
			scanArgs[i] = &raw[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("format/parquet: scan: %w", err)
		}

		ts, err := parseParquetTime(raw[0])
		if err != nil {
			return nil, fmt.Errorf("format/parquet: timestamp: %w", err)
		}
		genTS, err := parseParquetTime(raw[3])
		if err != nil {
			return nil, fmt.Errorf("format/parquet: generation_timestamp: %w", err)
		}
		samples := make([]float64, sampleCount)
		for i := 0; i < sampleCount; i++ {
			samples[i], err = toFloat64(raw[5+i])
			if err != nil {
				return nil, fmt.Errorf("format/parquet: sample %d: %w", i, err)
			}
		}
		ensGenTS, _ := parseParquetTime(raw[5+sampleCount])

		t.Timestamp = append(t.Timestamp, ts)
		t.Product = append(t.Product, fmt.Sprintf("%v", raw[1]))
		pf, _ := toFloat64(raw[2])
		t.PointForecast = append(t.PointForecast, pf)
		t.GenerationTimestamp = append(t.GenerationTimestamp, genTS)
		t.IsFallback = append(t.IsFallback, raw[4] == true)
		t.Samples = append(t.Samples, samples)
		t.EnsembleGenerationTimestamp = ensGenTS
		t.EnsembleIsFallback = raw[6+sampleCount] == true
		t.SchemaVersion = fmt.Sprintf("%v", raw[7+sampleCount])
	}
	return t, rows.Err()
}

func parseParquetTime(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return time.Parse(parquetTimeLayout, x)
	default:
		return time.Time{}, fmt.Errorf("unsupported time representation %T", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric representation %T", v)
	}
}

func sampleColumnDefs(n int) []string {
	out := make([]string, n)
	for i, name := range sampleColumnNames(n) {
		out[i] = name + " DOUBLE"
	}
	return out
}

func init() {
	Register(ParquetFormat{})
}
