// Package reconcile implements the three-way convergence algorithm that
// keeps a paired issue's state on platform A and platform B converged on
// a single canonical snapshot (spec.md §4.6).
package reconcile

import (
	"regexp"
	"strings"
)

// sourceLinePattern matches the conventional backlink line spec.md §6
// defines: "^Source:\s+<absolute-url>\s*$", case-insensitive on the
// keyword.
var sourceLinePattern = regexp.MustCompile(`(?i)^Source:\s*\S+\s*$`)

// NormalizeBacklink rewrites description so its first line is
// "Source: <counterpartURL>", dropping any pre-existing Source: line
// (case-insensitive) first. This is centralized here and shared with
// internal/pairing per spec.md §4.5's "centralized" instruction, and is
// idempotent: applying it N≥1 times to any description yields the same
// result as applying it once (spec.md §8 property 5).
func NormalizeBacklink(description, counterpartURL string) string {
	body := stripExistingSourceLine(description)
	backlink := "Source: " + counterpartURL
	if body == "" {
		return backlink
	}
	return backlink + "\n\n" + body
}

// stripExistingSourceLine drops the first line of description if it
// matches the Source: convention, along with the following blank
// separator line if one is present.
func stripExistingSourceLine(description string) string {
	lines := strings.Split(description, "\n")
	if len(lines) == 0 || !sourceLinePattern.MatchString(strings.TrimSpace(lines[0])) {
		return description
	}
	rest := lines[1:]
	if len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
		rest = rest[1:]
	}
	return strings.Join(rest, "\n")
}
