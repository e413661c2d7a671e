package store

import "fmt"

// NotFoundError signals no artifact satisfies a get/get_latest query.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("store: not found: %s", e.Query) }

// SchemaValidationError wraps a failed validate.Schema result on put.
type SchemaValidationError struct {
	Messages []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("store: schema validation failed: %v", e.Messages)
}

// StorageWriteError wraps an I/O failure while writing an artifact,
// index row, or latest pointer.
type StorageWriteError struct {
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string { return fmt.Sprintf("store: write failed (%s): %v", e.Op, e.Err) }
func (e *StorageWriteError) Unwrap() error { return e.Err }
