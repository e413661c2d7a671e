package format

import "fmt"

// Format is a pluggable columnar codec for Forecast Artifacts.
// Implementations live one per file (json.go, csv.go, parquet.go,
// xlsx.go) and are looked up by name via Get.
type Format interface {
	// Name is the format identifier used in config and the format=
	// query parameter (e.g. "json", "csv", "parquet", "xlsx").
	Name() string
	// Ext is the file extension written, without a leading dot.
	Ext() string
	Write(path string, t *Table) error
	Read(path string) (*Table, error)
}

var registry = map[string]Format{}

// Register adds a Format to the registry, keyed by its Name().
func Register(f Format) {
	registry[f.Name()] = f
}

// Get returns the registered Format for name, or an error if none is
// registered.
func Get(name string) (Format, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("format: unknown format %q", name)
	}
	return f, nil
}

// Names returns every registered format name.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
