// Package similarity scores textual closeness between two strings on a
// normalized 0-100 scale.
package similarity

import (
	"math"

	"github.com/agext/levenshtein"
	"github.com/antzucaro/matchr"
)

// Score returns a similarity percentage in [0, 100] for a pair of strings.
//
// The score is the better of two metrics: the normalized Levenshtein ratio
// (1 - editDistance / maxRuneLength) and Jaro-Winkler. Levenshtein tracks
// character-level typos; Jaro-Winkler rewards shared prefixes, which is what
// distinguishes "Acme Inc" from "Acme Incorporated" in company-name data.
//
// Properties: Score(a, b) == Score(b, a); Score(a, a) == 100, including
// Score("", "") == 100; an empty string against a non-empty one scores 0.
// The combined value is floored, and only identical strings reach 100, so a
// threshold of 100 selects exact duplicates only. Comparison is
// case-sensitive; callers wanting case-insensitive matching fold their
// inputs first.
func Score(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	lev := levenshtein.Similarity(a, b, nil)
	jw := matchr.JaroWinkler(a, b, false)

	s := int(math.Floor(math.Max(lev, jw) * 100))
	switch {
	case s >= 100:
		// Rounding must not promote a near-miss to an exact match.
		return 99
	case s < 0:
		return 0
	default:
		return s
	}
}
