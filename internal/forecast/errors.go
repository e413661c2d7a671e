package forecast

import (
	"fmt"

	"github.com/rozsasarpi/gridcast/internal/market"
)

// StageError carries the (product, hour, stage) context every
// single-hour forecast failure surfaces with.
type StageError struct {
	Product market.Product
	Hour    int
	Stage   string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("forecast[%s h=%d stage=%s]: %v", e.Product, e.Hour, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ModelSelectionError signals that no model is registered for a
// (product, hour) key.
type ModelSelectionError struct{ *StageError }

// InvalidFeatureError names every feature column that was missing or
// non-finite during projection.
type InvalidFeatureError struct {
	*StageError
	MissingColumns []string
}

// ModelExecutionError signals a numeric failure during point prediction.
type ModelExecutionError struct{ *StageError }

// GenerationError is the top-level wrapper every single-hour forecast
// failure is reported as.
type GenerationError struct{ *StageError }

func wrapStage(product market.Product, hour int, stage string, err error) *StageError {
	return &StageError{Product: product, Hour: hour, Stage: stage, Err: err}
}
