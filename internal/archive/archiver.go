package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/store"
)

// ArtifactMetadata describes one archived artifact, mirroring the
// teacher's per-database DatabaseMetadata entry.
type ArtifactMetadata struct {
	Product   string    `json:"product"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// Manifest is the archive's metadata file, mirroring the teacher's
// BackupMetadata.
type Manifest struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Artifacts []ArtifactMetadata `json:"artifacts"`
}

// Result summarizes one archival run.
type Result struct {
	ArchiveKey     string
	ArtifactCount  int
	ArchiveBytes   int64
	OldestArchived time.Time
	NewestArchived time.Time
}

// uploader is the subset of Client that Run needs, narrowed to an
// interface so tests can exercise Run against a fake bucket.
type uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
}

// Archiver tars, checksums, and uploads Forecast Store artifacts older
// than RetentionDays, then prunes them locally. Grounded on the
// teacher's R2BackupService.CreateAndUploadBackup, adapted from
// "backup N sqlite databases" to "archive artifact shards past a
// retention window."
type Archiver struct {
	store         *store.Store
	client        uploader
	retentionDays int
	log           zerolog.Logger
	now           func() time.Time
}

// New constructs an Archiver. retentionDays <= 0 disables the job (no
// artifact is ever old enough to archive).
func New(st *store.Store, client uploader, retentionDays int, log zerolog.Logger) *Archiver {
	return &Archiver{
		store:         st,
		client:        client,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "archiver").Logger(),
		now:           time.Now,
	}
}

// Run archives every indexed artifact whose StartTime is older than
// the retention cutoff. Returns a zero-value Result (ArtifactCount ==
// 0) when nothing qualifies; that is not an error.
func (a *Archiver) Run(ctx context.Context) (Result, error) {
	if a.retentionDays <= 0 {
		return Result{}, nil
	}
	cutoff := a.now().AddDate(0, 0, -a.retentionDays)

	var stale []store.IndexEntry
	for _, e := range a.store.Index.Entries() {
		if e.StartTime.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	if len(stale) == 0 {
		a.log.Info().Time("cutoff", cutoff).Msg("no artifacts old enough to archive")
		return Result{}, nil
	}

	a.log.Info().Int("count", len(stale)).Time("cutoff", cutoff).Msg("starting artifact archival")

	stagingDir, err := os.MkdirTemp("", "gridcast-archive-")
	if err != nil {
		return Result{}, fmt.Errorf("archive: create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	manifest := Manifest{
		Timestamp: a.now().UTC(),
		Version:   "1.0.0",
		Artifacts: make([]ArtifactMetadata, 0, len(stale)),
	}
	result := Result{OldestArchived: stale[0].StartTime, NewestArchived: stale[0].StartTime}

	for _, e := range stale {
		if e.StartTime.Before(result.OldestArchived) {
			result.OldestArchived = e.StartTime
		}
		if e.StartTime.After(result.NewestArchived) {
			result.NewestArchived = e.StartTime
		}

		name := filepath.Base(e.FilePath)
		staged := filepath.Join(stagingDir, name)
		if err := copyFile(e.FilePath, staged); err != nil {
			return Result{}, fmt.Errorf("archive: stage %s: %w", e.FilePath, err)
		}
		checksum, err := checksumFile(staged)
		if err != nil {
			return Result{}, fmt.Errorf("archive: checksum %s: %w", staged, err)
		}
		info, err := os.Stat(staged)
		if err != nil {
			return Result{}, fmt.Errorf("archive: stat %s: %w", staged, err)
		}
		manifest.Artifacts = append(manifest.Artifacts, ArtifactMetadata{
			Product:   string(e.Product),
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
			Filename:  name,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	manifestPath := filepath.Join(stagingDir, "manifest.json")
	if err := writeManifest(manifestPath, manifest); err != nil {
		return Result{}, fmt.Errorf("archive: write manifest: %w", err)
	}

	timestamp := a.now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("gridcast-archive-%s.tar.gz", timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)

	names := make([]string, 0, len(manifest.Artifacts)+1)
	for _, am := range manifest.Artifacts {
		names = append(names, am.Filename)
	}
	names = append(names, "manifest.json")
	if err := createArchive(archivePath, stagingDir, names); err != nil {
		return Result{}, fmt.Errorf("archive: create tar.gz: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("archive: stat archive: %w", err)
	}
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("archive: open archive: %w", err)
	}
	defer archiveFile.Close()

	key := "archives/" + archiveName
	if err := a.client.Upload(ctx, key, archiveFile, archiveInfo.Size()); err != nil {
		return Result{}, err
	}

	paths := make([]string, 0, len(stale))
	for _, e := range stale {
		paths = append(paths, e.FilePath)
	}
	if err := a.store.Index.Remove(paths); err != nil {
		a.log.Error().Err(err).Msg("artifacts uploaded but index row removal failed; artifacts remain on disk")
		return Result{}, err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			a.log.Warn().Err(err).Str("path", p).Msg("archived artifact could not be removed from disk")
		}
	}

	result.ArchiveKey = key
	result.ArtifactCount = len(stale)
	result.ArchiveBytes = archiveInfo.Size()
	a.log.Info().
		Str("archive", key).
		Int("artifact_count", result.ArtifactCount).
		Int64("size_mb", result.ArchiveBytes/1024/1024).
		Msg("artifact archival completed")
	return result, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeManifest(path string, manifest Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzWriter := gzip.NewWriter(archiveFile)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	for _, name := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("add %s to archive: %w", name, err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, f)
	return err
}
