package core

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	digitRuns = regexp.MustCompile(`[0-9]+`)
	foldCaser = cases.Fold()
)

// NormalizeQuery maps a raw request query to its query pattern: NFKC
// normalization, case folding, whitespace collapsing, and digit runs
// replaced with a placeholder so "order 42" and "order 7" share a
// pattern.
func NormalizeQuery(query string) string {
	s := norm.NFKC.String(query)
	s = foldCaser.String(s)
	s = digitRuns.ReplaceAllString(s, "#")
	return strings.Join(strings.Fields(s), " ")
}

// Fingerprint hashes a query down to the identifier shared by all
// similar requests. Keyed storage and mining cycles are partitioned by
// this value.
func Fingerprint(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:16])
}
