package engine

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// failureClass buckets pip install failures for the retry policy.
type failureClass int

const (
	failureUnknown failureClass = iota
	failureVersionNotFound
)

// Output fragments pip emits when no distribution matches a requirement
// specifier. Kept as an explicit classifier so the retry condition is
// testable on its own rather than inferred from scattered string matching.
var versionNotFoundFragments = []string{
	"no matching distribution",
	"could not find a version",
}

// classifyInstallFailure inspects pip's combined output and decides whether
// the failure is the no-matching-version class that warrants a bare-latest
// fallback retry. Anything else is not retried.
func classifyInstallFailure(output string) failureClass {
	lowered := strings.ToLower(output)
	for _, fragment := range versionNotFoundFragments {
		if strings.Contains(lowered, fragment) {
			return failureVersionNotFound
		}
	}
	return failureUnknown
}

// suggestSimilar finds the closest known module name for typo detection
// using Levenshtein distance. Only near misses (distance <= 2) qualify.
func suggestSimilar(known []string, name string) string {
	var best string
	bestDistance := 3

	nameLower := strings.ToLower(name)
	for _, candidate := range known {
		if candidate == name {
			continue
		}
		distance := levenshtein.ComputeDistance(nameLower, strings.ToLower(candidate))
		if distance < bestDistance {
			bestDistance = distance
			best = candidate
		}
	}

	return best
}
