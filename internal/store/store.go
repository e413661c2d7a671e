// Package store implements the Forecast Store: directory-sharded
// columnar artifacts, a sqlite-backed Storage Index, an atomic "latest"
// pointer per product, and a pluggable on-disk format
// (internal/store/format).
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/store/format"
	"github.com/rozsasarpi/gridcast/internal/validate"
)

// Store persists, indexes, and serves Forecast Artifacts.
type Store struct {
	Root   string
	Format format.Format
	Index  *Index
	Log    zerolog.Logger
	Now    func() time.Time
}

// Open constructs a Store rooted at root, using fmt for artifact
// encoding, opening (or creating) its sqlite Storage Index.
func Open(root string, fmtCodec format.Format, log zerolog.Logger) (*Store, error) {
	idx, err := OpenIndex(IndexDBPath(root))
	if err != nil {
		return nil, err
	}
	return &Store{
		Root:   root,
		Format: fmtCodec,
		Index:  idx,
		Log:    log.With().Str("component", "forecast_store").Logger(),
		Now:    time.Now,
	}, nil
}

// Close releases the underlying index connection.
func (s *Store) Close() error {
	return s.Index.Close()
}

// Put validates, writes, and indexes one ensemble, swinging the
// product's latest pointer to it. The artifact write is write-then-
// rename; the latest pointer swing is a rename; the index append
// happens last so a crash between artifact write and index append
// leaves an artifact present but un-indexed, repairable by RebuildIndex.
func (s *Store) Put(ens *forecast.ForecastEnsemble) (IndexEntry, error) {
	table := format.ToTable(ens)

	if vr := validate.Schema(table.Columns(), table.SampleCount()); !vr.IsValid {
		return IndexEntry{}, &SchemaValidationError{Messages: vr.Messages()}
	}

	artifactPath := ArtifactPath(s.Root, ens.Product, ens.StartTime, s.Format.Ext())
	if err := s.Format.Write(artifactPath, table); err != nil {
		return IndexEntry{}, &StorageWriteError{Op: "write artifact", Err: err}
	}

	latestPath := LatestPath(s.Root, ens.Product, s.Format.Ext())
	if err := s.swingLatest(artifactPath, latestPath); err != nil {
		return IndexEntry{}, &StorageWriteError{Op: "swing latest pointer", Err: err}
	}

	entry := IndexEntry{
		Product:             ens.Product,
		StartTime:           ens.StartTime,
		EndTime:             ens.EndTime,
		GenerationTimestamp: ens.GenerationTimestamp,
		IsFallback:          ens.IsFallback(),
		FilePath:            artifactPath,
		SchemaVersion:       table.SchemaVersion,
	}
	if err := s.Index.Append(entry); err != nil {
		s.Log.Warn().Err(err).Str("path", artifactPath).Msg("artifact written but index append failed; repair with rebuild_index")
		return entry, &StorageWriteError{Op: "append index", Err: err}
	}
	return entry, nil
}

// swingLatest copies artifactPath's bytes to a temp file next to
// latestPath, then renames over it — an atomic pointer swing without
// relying on symlink support (portable across filesystems the teacher
// targets).
func (s *Store) swingLatest(artifactPath, latestPath string) error {
	if err := os.MkdirAll(filepath.Dir(latestPath), 0o755); err != nil {
		return fmt.Errorf("mkdir latest dir: %w", err)
	}
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("read artifact for latest copy: %w", err)
	}
	tmp := latestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write latest tmp: %w", err)
	}
	return os.Rename(tmp, latestPath)
}

// Get returns the ensemble whose [start_time, end_time) contains date
// (interpreted as midnight in the given location) for product.
func (s *Store) Get(date time.Time, product market.Product, loc *time.Location) (*forecast.ForecastEnsemble, error) {
	target := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	for _, e := range s.Index.Entries() {
		if e.Product != product {
			continue
		}
		if !target.Before(e.StartTime) && target.Before(e.EndTime) {
			return s.readArtifact(e)
		}
	}
	return nil, &NotFoundError{Query: fmt.Sprintf("get(%s, %s)", date.Format("2006-01-02"), product)}
}

// GetLatest returns the most recently written ensemble for product, via
// the latest pointer file.
func (s *Store) GetLatest(product market.Product) (*forecast.ForecastEnsemble, error) {
	latestPath := LatestPath(s.Root, product, s.Format.Ext())
	if _, err := os.Stat(latestPath); err != nil {
		return nil, &NotFoundError{Query: fmt.Sprintf("get_latest(%s)", product)}
	}
	table, err := s.Format.Read(latestPath)
	if err != nil {
		return nil, fmt.Errorf("store: read latest artifact: %w", err)
	}
	return format.FromTable(table)
}

// GetRange returns every ensemble for product whose interval
// intersects [startDate, endDate], ordered by start_time.
func (s *Store) GetRange(startDate, endDate time.Time, product market.Product) ([]*forecast.ForecastEnsemble, error) {
	var matches []IndexEntry
	for _, e := range s.Index.Entries() {
		if e.Product != product {
			continue
		}
		if !e.EndTime.After(startDate) || e.StartTime.After(endDate) {
			continue
		}
		matches = append(matches, e)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartTime.Before(matches[j].StartTime) })

	out := make([]*forecast.ForecastEnsemble, 0, len(matches))
	for _, e := range matches {
		ens, err := s.readArtifact(e)
		if err != nil {
			return nil, err
		}
		out = append(out, ens)
	}
	return out, nil
}

// RebuildIndex walks the directory tree, reads every artifact's
// metadata, and rewrites the index from scratch. Idempotent.
func (s *Store) RebuildIndex() (int, error) {
	var entries []IndexEntry
	ext := "." + s.Format.Ext()

	err := filepath.WalkDir(s.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ext {
			return nil
		}
		if filepath.Dir(filepath.Dir(path)) == s.Root && filepath.Base(filepath.Dir(path)) == "latest" {
			return nil // skip latest-pointer copies
		}
		table, rerr := s.Format.Read(path)
		if rerr != nil {
			s.Log.Warn().Err(rerr).Str("path", path).Msg("rebuild_index: skipping unreadable artifact")
			return nil
		}
		if len(table.Timestamp) == 0 {
			return nil
		}
		start := table.Timestamp[0]
		end := start
		for _, ts := range table.Timestamp {
			if ts.Before(start) {
				start = ts
			}
			if ts.After(end) {
				end = ts
			}
		}
		entries = append(entries, IndexEntry{
			Product:             market.Product(table.Product[0]),
			StartTime:           start,
			EndTime:             end.Add(time.Hour),
			GenerationTimestamp: table.EnsembleGenerationTimestamp,
			IsFallback:          table.EnsembleIsFallback,
			FilePath:            path,
			SchemaVersion:       table.SchemaVersion,
		})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: rebuild_index walk: %w", err)
	}

	if err := s.Index.Rebuild(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Info summarizes counts, disk usage, and per-product coverage.
type Info struct {
	TotalArtifacts int
	TotalBytes     int64
	PerProduct     map[market.Product]ProductCoverage
}

// ProductCoverage is one product's oldest/newest artifact window and
// artifact count.
type ProductCoverage struct {
	Count   int
	Oldest  time.Time
	Newest  time.Time
}

func (s *Store) Info() (Info, error) {
	info := Info{PerProduct: map[market.Product]ProductCoverage{}}
	for _, e := range s.Index.Entries() {
		info.TotalArtifacts++
		if fi, err := os.Stat(e.FilePath); err == nil {
			info.TotalBytes += fi.Size()
		}
		cov := info.PerProduct[e.Product]
		cov.Count++
		if cov.Oldest.IsZero() || e.StartTime.Before(cov.Oldest) {
			cov.Oldest = e.StartTime
		}
		if cov.Newest.IsZero() || e.StartTime.After(cov.Newest) {
			cov.Newest = e.StartTime
		}
		info.PerProduct[e.Product] = cov
	}
	return info, nil
}

// ReadEntry reads the artifact an IndexEntry points to, for callers
// (e.g. the fallback engine) that already hold a specific entry rather
// than a date to search for.
func (s *Store) ReadEntry(e IndexEntry) (*forecast.ForecastEnsemble, error) {
	return s.readArtifact(e)
}

func (s *Store) readArtifact(e IndexEntry) (*forecast.ForecastEnsemble, error) {
	table, err := s.Format.Read(e.FilePath)
	if err != nil {
		return nil, fmt.Errorf("store: read artifact %s: %w", e.FilePath, err)
	}
	return format.FromTable(table)
}
