package match

import (
	"sort"
	"strings"
)

// Ratio is a sequence-alignment similarity in [0..1]: the longest matching
// blocks of the two strings are summed and scored as 2*M/T, where T is the
// combined length. Ratio(x,x)=1 and the score decays with edit distance.
func Ratio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	m := matchedLen(ra, rb)
	return 2 * float64(m) / float64(total)
}

// matchedLen sums the longest common block, then recurses into the pieces on
// either side of it (the SequenceMatcher decomposition).
func matchedLen(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, size := longestBlock(a, b)
	if size == 0 {
		return 0
	}
	return size + matchedLen(a[:ai], b[:bi]) + matchedLen(a[ai+size:], b[bi+size:])
}

// longestBlock finds the leftmost longest common substring of a and b.
func longestBlock(a, b []rune) (ai, bi, size int) {
	// prev[j] = length of the common suffix of a[:i] and b[:j]
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}

// TokenSortRatio compares with tokens sorted alphabetically, so word order
// does not matter ("CABO UTP REDE" == "CABO REDE UTP").
func TokenSortRatio(a, b string) float64 {
	return Ratio(tokenSort(a), tokenSort(b))
}

// BestRatio is the better of the plain and token-sorted scores.
func BestRatio(a, b string) float64 {
	x := Ratio(a, b)
	if y := TokenSortRatio(a, b); y > x {
		return y
	}
	return x
}

func tokenSort(s string) string {
	f := strings.Fields(s)
	sort.Strings(f)
	return strings.Join(f, " ")
}

// Match is one scored candidate.
type Match struct {
	Candidate string
	Score     float64
}

// FindMatches scores target against every candidate and returns those at or
// above threshold, best first. Ties keep candidate order (deterministic).
func FindMatches(target string, candidates []string, threshold float64) []Match {
	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if s := Ratio(target, c); s >= threshold {
			out = append(out, Match{Candidate: c, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// BestMatch returns the highest-scoring candidate at or above threshold.
func BestMatch(target string, candidates []string, threshold float64) (Match, bool) {
	ms := FindMatches(target, candidates, threshold)
	if len(ms) == 0 {
		return Match{}, false
	}
	return ms[0], true
}
