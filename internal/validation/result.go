// Package validation holds the shared ValidationResult value type used by
// every validator in GridCast (time/schema primitives, the forecasting
// engine's input checks, and the standalone completeness/plausibility/
// consistency/schema validators). Validation is expressed as a result
// type composed by merge, never as exception-style control flow in hot
// paths.
package validation

// Category tags used across the validation taxonomy.
const (
	CategoryCompleteness = "completeness"
	CategoryPlausibility = "plausibility"
	CategoryConsistency  = "consistency"
	CategorySchema       = "schema"
	CategoryGeneric      = "generic"
)

// Result carries the outcome of one or more validation passes, keyed by
// category so that callers can distinguish a blocking schema failure from
// a soft consistency warning.
type Result struct {
	IsValid  bool
	Errors   map[string][]string
	Warnings map[string][]string
}

// OK returns a valid, empty result.
func OK() Result {
	return Result{IsValid: true, Errors: map[string][]string{}, Warnings: map[string][]string{}}
}

// AddError records a failure under category and flips IsValid to false.
func (r *Result) AddError(category, msg string) {
	if r.Errors == nil {
		r.Errors = map[string][]string{}
	}
	r.Errors[category] = append(r.Errors[category], msg)
	r.IsValid = false
}

// AddWarning records a non-blocking issue under category without
// affecting IsValid.
func (r *Result) AddWarning(category, msg string) {
	if r.Warnings == nil {
		r.Warnings = map[string][]string{}
	}
	r.Warnings[category] = append(r.Warnings[category], msg)
}

var categoryOrder = []string{CategoryCompleteness, CategoryPlausibility, CategoryConsistency, CategorySchema, CategoryGeneric}

// Messages returns every error message across all categories, in a stable
// order (categories in categoryOrder: completeness, plausibility,
// consistency, schema, generic; messages in insertion order within a
// category).
func (r Result) Messages() []string {
	var out []string
	for _, cat := range categoryOrder {
		out = append(out, r.Errors[cat]...)
	}
	return out
}

// WarningMessages returns every warning message across all categories, in
// the same stable category order as Messages.
func (r Result) WarningMessages() []string {
	var out []string
	for _, cat := range categoryOrder {
		out = append(out, r.Warnings[cat]...)
	}
	return out
}

// Merge composes zero or more results into one. The merged result is
// valid only if every input was valid; errors and warnings from all
// inputs are concatenated per category.
func Merge(results ...Result) Result {
	merged := OK()
	for _, r := range results {
		if !r.IsValid {
			merged.IsValid = false
		}
		for cat, msgs := range r.Errors {
			merged.Errors[cat] = append(merged.Errors[cat], msgs...)
		}
		for cat, msgs := range r.Warnings {
			merged.Warnings[cat] = append(merged.Warnings[cat], msgs...)
		}
	}
	return merged
}
