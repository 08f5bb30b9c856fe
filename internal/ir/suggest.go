package ir

import "github.com/agnivade/levenshtein"

// Suggest returns the closest candidate within edit distance 3, or "".
// Ties resolve to the lexically smaller candidate.
func Suggest(want string, candidates []string) string {
	best, bestDist := "", 4
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(want, c)
		if d < bestDist || (d == bestDist && c < best) {
			best, bestDist = c, d
		}
	}
	return best
}
