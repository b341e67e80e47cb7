// Package dedup merges video candidates from multiple sources against the
// known library, producing a plan of new videos and external-id merges.
package dedup

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// suffixRegex matches decoration commonly appended to music video titles,
// e.g. "(Official Video)", "[Official Music Video]", "(Lyric Video)", "(HD)".
// Applied repeatedly so stacked suffixes all come off.
var suffixRegex = regexp.MustCompile(`(?i)\s*[(\[](official\s+)?(music\s+)?(video|audio|lyric(s)?(\s+video)?|visualizer|live|hd|hq|4k|remaster(ed)?( \d{4})?)[)\]]\s*$`)

// featRegex matches featured-artist credits, which sources disagree on.
var featRegex = regexp.MustCompile(`(?i)\s*[(\[]?(feat|ft)\.?\s+[^)\]]*[)\]]?\s*$`)

// CleanTitle normalizes a video title for matching purposes.
// Strips promotional suffixes, featured-artist credits, accents, and
// punctuation, lowercases, and collapses whitespace.
func CleanTitle(title string) string {
	s := strings.TrimSpace(title)

	for {
		stripped := suffixRegex.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = featRegex.ReplaceAllString(s, "")

	s = strings.ToLower(s)
	s = removeAccents(s)

	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "'", "")

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	s = b.String()

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// matchThreshold is the minimum Jaro-Winkler similarity between cleaned
// titles for two candidates to be considered the same track.
const matchThreshold = 0.95

// TitlesMatch reports whether two raw titles refer to the same track.
// Exact match after cleaning wins; otherwise a high-confidence fuzzy match
// absorbs minor spelling differences between sources.
func TitlesMatch(a, b string) bool {
	ca, cb := CleanTitle(a), CleanTitle(b)
	if ca == "" || cb == "" {
		return false
	}
	if ca == cb {
		return true
	}
	return float64(edlib.JaroWinklerSimilarity(ca, cb)) >= matchThreshold
}
