package matcher

import (
	"sort"
	"strings"
	"unicode"
)

// Normalize lowercases s, replaces every rune that is not a letter or digit
// with a space, and collapses runs of whitespace. Queries and candidate
// questions go through the same processor before scoring.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Ratio is the normalized Indel similarity of a and b in [0, 100]:
// 200 * LCS(a, b) / (len(a) + len(b)), measured in runes. Two empty strings
// are identical.
func Ratio(a, b string) float64 {
	return ratioRunes([]rune(a), []rune(b))
}

func ratioRunes(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 100
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return 200 * float64(lcs(a, b)) / float64(len(a)+len(b))
}

// lcs returns the length of the longest common subsequence of a and b.
func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// PartialRatio scores the best alignment of the shorter string against every
// same-length window of the longer one, including the partial windows that
// hang off either end. Windows whose boundary rune does not occur in the
// shorter string cannot improve on an aligned window and are skipped.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	short, long := ra, rb
	if len(ra) > len(rb) {
		short, long = rb, ra
	}
	m, n := len(short), len(long)

	inShort := make(map[rune]struct{}, m)
	for _, r := range short {
		inShort[r] = struct{}{}
	}
	has := func(r rune) bool {
		_, ok := inShort[r]
		return ok
	}

	var best float64
	// Prefix windows shorter than the needle.
	for i := 1; i < m; i++ {
		if !has(long[i-1]) {
			continue
		}
		best = max(best, ratioRunes(short, long[:i]))
	}
	// Full-length windows.
	for i := 0; i <= n-m; i++ {
		if !has(long[i+m-1]) {
			continue
		}
		best = max(best, ratioRunes(short, long[i:i+m]))
		if best == 100 {
			return best
		}
	}
	// Suffix windows shorter than the needle.
	for i := n - m + 1; i < n; i++ {
		if !has(long[i]) {
			continue
		}
		best = max(best, ratioRunes(short, long[i:]))
	}
	return best
}

// TokenSortRatio compares a and b after sorting their whitespace-separated
// tokens, so word order does not matter.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	toks := strings.Fields(s)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}

// TokenSetRatio compares the shared vocabulary of a and b against each side's
// leftover words. When one side's vocabulary is a subset of the other's (and
// they share at least one word), the score is 100.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, diffAB, diffBA []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter = append(inter, t)
		} else {
			diffAB = append(diffAB, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			diffBA = append(diffBA, t)
		}
	}
	if len(inter) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}

	sort.Strings(inter)
	sort.Strings(diffAB)
	sort.Strings(diffBA)
	sect := strings.Join(inter, " ")
	ab := joinNonEmpty(sect, strings.Join(diffAB, " "))
	ba := joinNonEmpty(sect, strings.Join(diffBA, " "))

	best := Ratio(ab, ba)
	if sect != "" {
		best = max(best, Ratio(sect, ab), Ratio(sect, ba))
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	toks := strings.Fields(s)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
