// Package market defines the closed set of electricity market products
// GridCast forecasts, the hour-of-day key used for per-hour model
// dispatch, and the per-product constants (uncertainty adjustment
// factors, fixed-method stddevs, cold-start fallback prices).
package market

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rozsasarpi/gridcast/internal/validation"
)

// Product is one of the six enumerated market price identifiers.
type Product string

// The closed set of products. DALMP and RTLMP are energy prices (may be
// negative); the remaining four are ancillary services (non-negative).
const (
	DALMP    Product = "DALMP"
	RTLMP    Product = "RTLMP"
	RegUp    Product = "RegUp"
	RegDown  Product = "RegDown"
	RRS      Product = "RRS"
	NSRS     Product = "NSRS"
)

// orderedProducts fixes the deterministic write order used for the
// forecast stage's per-product fan-out and its store writes.
var orderedProducts = []Product{DALMP, RTLMP, RegUp, RegDown, RRS, NSRS}

// AllProducts returns the six products in the fixed, deterministic order
// used for store-write sequencing and ensemble construction.
func AllProducts() []Product {
	out := make([]Product, len(orderedProducts))
	copy(out, orderedProducts)
	return out
}

var validSet = func() map[Product]bool {
	m := make(map[Product]bool, len(orderedProducts))
	for _, p := range orderedProducts {
		m[p] = true
	}
	return m
}()

// IsValid reports whether p is one of the six known products.
func (p Product) IsValid() bool {
	return validSet[p]
}

// IsAncillary reports whether p is one of the four ancillary-service
// products, which must never go negative.
func (p Product) IsAncillary() bool {
	switch p {
	case RegUp, RegDown, RRS, NSRS:
		return true
	default:
		return false
	}
}

// AdjustmentFactor returns the uncertainty scaling factor assigned to p.
// Unknown products return 1.0.
func AdjustmentFactor(p Product) float64 {
	switch p {
	case DALMP:
		return 1.0
	case RTLMP:
		return 1.2
	case RegUp, RegDown:
		return 0.8
	case RRS:
		return 0.7
	case NSRS:
		return 0.7
	default:
		return 1.0
	}
}

// FixedStdDev returns the per-product constant standard deviation used by
// the "fixed_value" uncertainty method.
func FixedStdDev(p Product) float64 {
	switch p {
	case DALMP:
		return 5
	case RTLMP:
		return 8
	case RegUp, RegDown:
		return 3
	case RRS:
		return 2.5
	case NSRS:
		return 2
	default:
		return 5
	}
}

// DefaultFallbackPrice returns the constant point-forecast value used to
// synthesize a cold-start fallback artifact when no prior artifact
// exists for p.
func DefaultFallbackPrice(p Product) float64 {
	switch p {
	case DALMP:
		return 30
	case RTLMP:
		return 35
	case RegUp:
		return 10
	case RegDown:
		return 7
	case RRS:
		return 8
	case NSRS:
		return 5
	default:
		return 0
	}
}

// PlausibilityBounds returns the sanity envelope used by the plausibility
// validator for energy products (ancillary products are bounded at zero
// on the low side instead; see internal/validate).
func PlausibilityBounds() (min, max float64) {
	return -1000, 10000
}

// ParseProduct validates s against the closed product set, returning a
// ValidationResult rather than an error so callers on hot paths can
// compose it with other checks before deciding whether to abort.
func ParseProduct(s string) (Product, validation.Result) {
	p := Product(s)
	if p.IsValid() {
		return p, validation.OK()
	}
	names := make([]string, len(orderedProducts))
	for i, op := range orderedProducts {
		names[i] = string(op)
	}
	sort.Strings(names)
	res := validation.OK()
	res.AddError(validation.CategorySchema, fmt.Sprintf("product %q is not one of {%s}", s, strings.Join(names, ", ")))
	return "", res
}

// ValidateHour enforces 0 <= h <= 23.
func ValidateHour(h int) validation.Result {
	if h < 0 || h > 23 {
		res := validation.OK()
		res.AddError(validation.CategorySchema, fmt.Sprintf("hour %d is not in [0,23]", h))
		return res
	}
	return validation.OK()
}
