package validate

import (
	"fmt"
	"strings"
)

// Severity classifies a validation finding.
type Severity string

const (
	// SeverityError marks a finding that makes the input invalid.
	SeverityError Severity = "error"
	// SeverityWarning marks a finding that is unusual but not disqualifying.
	// Warnings never flip IsValid to false.
	SeverityWarning Severity = "warning"
)

// Error is a single validation finding, tagged with the field that produced
// it and the path to that field in the input structure.
type Error struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Value    any      `json:"value,omitempty"`
	Expected string   `json:"expected,omitempty"`
	Path     string   `json:"path"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of one validation run. Errors accumulates every
// finding from every pass; IsValid is true iff none of them carry
// SeverityError.
type Result struct {
	IsValid bool    `json:"isValid"`
	Errors  []Error `json:"errors"`
	Summary string  `json:"summary"`
}

// errOpts carries the optional parts of a finding.
type errOpts struct {
	value    any
	expected string
	path     string
	severity Severity
}

// newError builds a finding. An empty path defaults to the field name and an
// empty severity defaults to SeverityError, matching the persisted contract.
func newError(field, message string, o errOpts) Error {
	if o.path == "" {
		o.path = field
	}
	if o.severity == "" {
		o.severity = SeverityError
	}
	return Error{
		Field:    field,
		Message:  message,
		Value:    o.value,
		Expected: o.expected,
		Path:     o.path,
		Severity: o.severity,
	}
}

// Common validation messages. Kept as constants/helpers so every check site
// reports the same wording.
const (
	msgStringRequired   = "Field must be a string"
	msgStringURI        = "String must be a valid URI"
	msgNumberRequired   = "Field must be a number"
	msgNumberInteger    = "Number must be an integer"
	msgArrayRequired    = "Field must be an array"
	msgArrayStringItems = "All array items must be strings"
	msgObjectRequired   = "Field must be an object"

	msgRecipeInvalid        = "Recipe validation failed"
	msgIngredientInvalid    = "Ingredient validation failed"
	msgMissingRequiredField = "Missing required field"
	msgAdditionalProperties = "Object contains unexpected properties"
)

func msgStringMinLength(min int) string {
	return fmt.Sprintf("String must be at least %d character%s long", min, plural(min))
}

func msgStringMaxLength(max int) string {
	return fmt.Sprintf("String must be no more than %d character%s long", max, plural(max))
}

func msgNumberMin(min int) string {
	return fmt.Sprintf("Number must be at least %d", min)
}

func msgNumberMultiple(multiple float64) string {
	return fmt.Sprintf("Number must be a multiple of %v", multiple)
}

func msgArrayMinItems(min int) string {
	return fmt.Sprintf("Array must contain at least %d item%s", min, plural(min))
}

func msgEnumInvalid(valid []string) string {
	return "Value must be one of: " + strings.Join(valid, ", ")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// hasErrorSeverity reports whether any finding is a hard error.
func hasErrorSeverity(errs []Error) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// countBySeverity returns the number of findings with the given severity.
func countBySeverity(errs []Error, sev Severity) int {
	n := 0
	for _, e := range errs {
		if e.Severity == sev {
			n++
		}
	}
	return n
}
