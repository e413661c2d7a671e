package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rozsasarpi/gridcast/internal/market"
)

// ArtifactPath returns the sharded path for an artifact:
// <root>/YYYY/MM/<product>_<YYYYMMDDTHHMMSS>.<ext>.
func ArtifactPath(root string, product market.Product, startTime time.Time, ext string) string {
	year := fmt.Sprintf("%04d", startTime.Year())
	month := fmt.Sprintf("%02d", startTime.Month())
	name := fmt.Sprintf("%s_%s.%s", product, startTime.Format("20060102T150405"), ext)
	return filepath.Join(root, year, month, name)
}

// LatestPath returns the atomic "latest" pointer path for a product.
func LatestPath(root string, product market.Product, ext string) string {
	return filepath.Join(root, "latest", fmt.Sprintf("%s.%s", product, ext))
}

// IndexDBPath returns the sqlite index database path. Kept as a
// dedicated file regardless of the chosen artifact format, since the
// Storage Index is sqlite-backed (see DESIGN.md) rather than a
// columnar file sharing the artifact codec.
func IndexDBPath(root string) string {
	return filepath.Join(root, "index.db")
}
