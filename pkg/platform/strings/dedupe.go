// Package strings holds small string-slice utilities shared across packages.
package strings

import (
	"strings"
)

// DedupeAndTrim trims whitespace from each element and drops empties and
// duplicates, preserving first-seen order. Configuration lists (broker
// addresses, CORS origins) pass through here so a stray comma or repeated
// entry never reaches a client constructor.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
