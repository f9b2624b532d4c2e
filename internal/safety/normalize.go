// Package safety implements the policy engine that turns extracted request
// items into an approved, clarification_required, or blocked decision.
package safety

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	unitTokenRe  = regexp.MustCompile(`\b\d+\s*(mg|mcg|ml)\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	firstIntRe   = regexp.MustCompile(`\d+`)
)

// Normalize canonicalizes a medicine name for matching: lowercase, strip
// unit tokens like "500mg", collapse whitespace, trim. Idempotent.
func Normalize(name string) string {
	s := strings.ToLower(name)
	s = unitTokenRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DosageValue extracts the first integer from free dosage text. Empty or
// unparsable text yields 0, which the engine treats as "dosage unknown".
func DosageValue(dosage string) int {
	m := firstIntRe.FindString(dosage)
	if m == "" {
		return 0
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return v
}
