// Package matching implements fuzzy name matching between external agent
// names from WIFO statements and internal employee names. All functions
// are pure; empty inputs score 0 instead of failing.
package matching

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Match strategies, ordered by evaluation priority.
const (
	MatchExact        = "exact"
	MatchNameParts    = "name_parts"
	MatchLastNameOnly = "lastname_only"
	MatchFuzzyFull    = "fuzzy_full"
	MatchPartsMatch   = "parts_match"
	MatchInitials     = "initials"
	MatchNone         = "none"
)

const (
	// DefaultMinScore is the acceptance threshold for an automatic match.
	DefaultMinScore = 0.7
	// DefaultSuggestionScore is the looser threshold for suggestions.
	DefaultSuggestionScore = 0.5

	tokenSimThreshold = 0.85
)

// Distance returns the case-insensitive Levenshtein edit distance.
func Distance(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	dp := make([][]int, len(ra)+1)
	for i := range dp {
		dp[i] = make([]int, len(rb)+1)
		dp[i][0] = i
	}
	for j := 0; j <= len(rb); j++ {
		dp[0][j] = j
	}

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			deletion := dp[i-1][j] + 1
			insertion := dp[i][j-1] + 1
			substitution := dp[i-1][j-1] + cost

			min := deletion
			if insertion < min {
				min = insertion
			}
			if substitution < min {
				min = substitution
			}
			dp[i][j] = min
		}
	}
	return dp[len(ra)][len(rb)]
}

// Similarity maps edit distance into [0,1]. Either string empty yields 0.
func Similarity(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	max := la
	if lb > max {
		max = lb
	}
	return 1 - float64(Distance(a, b))/float64(max)
}

// Normalize lowercases, folds German sharp s, strips diacritics, replaces
// everything non-alphanumeric with spaces and collapses whitespace runs.
func Normalize(name string) string {
	lower := strings.ToLower(name)
	lower = strings.ReplaceAll(lower, "ß", "ss")

	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, lower)
	if err != nil {
		stripped = lower
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ParsedName is the structured form of a free-text person name.
type ParsedName struct {
	FirstName string
	LastName  string
	Parts     []string
}

// ParseName splits a name into first/last name. It understands the
// "Last, First" statement convention and "First ... Last" ordering; a
// single token is treated as a surname.
func ParseName(name string) ParsedName {
	pn := ParsedName{Parts: strings.Fields(Normalize(name))}

	if i := strings.Index(name, ","); i >= 0 {
		lastParts := strings.Fields(Normalize(name[:i]))
		firstParts := strings.Fields(Normalize(name[i+1:]))
		if len(lastParts) > 0 {
			pn.LastName = lastParts[len(lastParts)-1]
		}
		if len(firstParts) > 0 {
			pn.FirstName = firstParts[0]
		}
		return pn
	}

	switch len(pn.Parts) {
	case 0:
	case 1:
		pn.LastName = pn.Parts[0]
	default:
		pn.FirstName = pn.Parts[0]
		pn.LastName = pn.Parts[len(pn.Parts)-1]
	}
	return pn
}

// MatchResult is the verdict of MatchNames.
type MatchResult struct {
	Score     float64 `json:"score"`
	MatchType string  `json:"match_type"`
}

// MatchNames evaluates all strategies and returns the best one. Exact
// matches short-circuit at 1.0; among the rest the highest score wins and
// ties keep the strategy computed first.
func MatchNames(search, candidate string) MatchResult {
	ns := Normalize(search)
	nc := Normalize(candidate)
	if ns == "" || nc == "" {
		return MatchResult{Score: 0, MatchType: MatchNone}
	}

	ps := ParseName(search)
	pc := ParseName(candidate)

	if ns == nc || sameTokens(ps.Parts, pc.Parts) {
		return MatchResult{Score: 1, MatchType: MatchExact}
	}

	best := MatchResult{Score: 0, MatchType: MatchNone}
	consider := func(score float64, matchType string) {
		if score > best.Score {
			best = MatchResult{Score: score, MatchType: matchType}
		}
	}

	lastSim := Similarity(ps.LastName, pc.LastName)
	if lastSim > 0.9 {
		if ps.FirstName != "" && pc.FirstName != "" {
			firstSim := Similarity(ps.FirstName, pc.FirstName)
			consider(0.6*lastSim+0.4*firstSim, MatchNameParts)
		} else {
			// Surname agrees but one side has no usable first name.
			consider(0.8*lastSim, MatchLastNameOnly)
		}
	}

	consider(Similarity(ns, nc), MatchFuzzyFull)
	consider(tokenOverlap(ps.Parts, pc.Parts), MatchPartsMatch)

	if initialsEqual(ps.Parts, pc.Parts) {
		consider(0.7, MatchInitials)
	}

	return best
}

// Match is a scored candidate, Index referring to the input slice.
type Match struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	MatchType string  `json:"match_type"`
}

// FindBestMatch returns the best candidate at or above minScore. On a
// miss the best-scoring candidate is still returned for diagnostics,
// with found == false.
func FindBestMatch(search string, candidates []string, minScore float64) (Match, bool) {
	best := Match{Index: -1, MatchType: MatchNone}
	for i, c := range candidates {
		r := MatchNames(search, c)
		if r.Score > best.Score {
			best = Match{Index: i, Name: c, Score: r.Score, MatchType: r.MatchType}
		}
	}
	return best, best.Index >= 0 && best.Score >= minScore
}

// FindAllMatches returns every candidate at or above minScore, sorted by
// score descending. Used to build "did you mean" suggestions.
func FindAllMatches(search string, candidates []string, minScore float64) []Match {
	var out []Match
	for i, c := range candidates {
		r := MatchNames(search, c)
		if r.Score >= minScore {
			out = append(out, Match{Index: i, Name: c, Score: r.Score, MatchType: r.MatchType})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func sameTokens(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// tokenOverlap scores the fraction of tokens on either side that have a
// sufficiently similar counterpart on the other, order-independent.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := 0
	for _, ta := range a {
		if hasSimilarToken(ta, b) {
			matched++
		}
	}
	for _, tb := range b {
		if hasSimilarToken(tb, a) {
			matched++
		}
	}
	return float64(matched) / float64(len(a)+len(b))
}

func hasSimilarToken(token string, tokens []string) bool {
	for _, t := range tokens {
		if Similarity(token, t) > tokenSimThreshold {
			return true
		}
	}
	return false
}

// initialsEqual reports whether both names reduce to the same initial
// sequence of length two or more.
func initialsEqual(a, b []string) bool {
	ia := initials(a)
	ib := initials(b)
	return len(ia) >= 2 && ia == ib
}

func initials(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		r := []rune(p)
		if len(r) > 0 {
			b.WriteRune(r[0])
		}
	}
	return b.String()
}
