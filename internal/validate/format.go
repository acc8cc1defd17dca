package validate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatResult renders a validation result as a human-readable report.
// The summary line comes first; individual findings follow as "path: message"
// lines. A passing result with no findings renders as the summary alone.
func FormatResult(result Result) string {
	if result.IsValid && len(result.Errors) == 0 {
		return result.Summary
	}

	var b strings.Builder
	b.WriteString(result.Summary)
	if len(result.Errors) > 0 {
		b.WriteString("\n\n")
		for i, e := range result.Errors {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s: %s", e.Path, e.Message)
		}
	}
	return b.String()
}

// FormatErrors renders findings grouped by path, with the offending value and
// expected shape attached where known.
func FormatErrors(errs []Error) string {
	if len(errs) == 0 {
		return "No validation errors found."
	}

	// Group by path, preserving first-appearance order.
	var order []string
	groups := make(map[string][]Error)
	for _, e := range errs {
		path := e.Path
		if path == "" {
			path = "unknown"
		}
		if _, seen := groups[path]; !seen {
			order = append(order, path)
		}
		groups[path] = append(groups[path], e)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d validation error%s:", len(errs), plural(len(errs))))

	for _, path := range order {
		pathErrs := groups[path]
		if len(pathErrs) == 1 {
			e := pathErrs[0]
			lines = append(lines, fmt.Sprintf("  %s: %s", path, e.Message))
			lines = appendDetail(lines, e, "     ")
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s:", path))
		for _, e := range pathErrs {
			lines = append(lines, fmt.Sprintf("     - %s", e.Message))
			lines = appendDetail(lines, e, "       ")
		}
	}

	return strings.Join(lines, "\n")
}

func appendDetail(lines []string, e Error, indent string) []string {
	if e.Value != nil {
		lines = append(lines, fmt.Sprintf("%sReceived: %s", indent, compactJSON(e.Value)))
	}
	if e.Expected != "" {
		lines = append(lines, fmt.Sprintf("%sExpected: %s", indent, e.Expected))
	}
	return lines
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
