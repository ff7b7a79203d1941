// package matching implements fuzzy track matching against the music library.
//
// Normalization and version-marker detection feed a 50/50 artist+title
// similarity score used both for library search acceptance and for the
// stricter near-duplicate suppression pass.
package matching

import (
	"regexp"
	"strings"
)

// versionMarkers is the fixed vocabulary of lexical cues indicating a track
// is a named variant rather than the canonical recording. Order matters:
// detection returns the first marker found.
var versionMarkers = []string{
	"remix", "mix", "edit", "version", "acoustic", "live", "instrumental",
	"extended", "radio edit", "demo", "remaster", "cover", "vip", "bootleg",
	"mashup",
}

var (
	featuredRe   = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s+.*$`)
	bracketRe    = regexp.MustCompile(`\s*[\[\(].*?[\]\)]`)
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	markerRegexp = compileMarkers()
)

func compileMarkers() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(versionMarkers))
	for i, m := range versionMarkers {
		res[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(m) + `\b`)
	}
	return res
}

// StripFeatured removes a trailing "feat./ft./featuring <rest>" clause,
// case-insensitive. Used on artist names and titles before comparison.
func StripFeatured(text string) string {
	return strings.TrimSpace(featuredRe.ReplaceAllString(text, ""))
}

// Normalize canonicalizes text for comparison: strips featured-artist
// clauses, optionally removes bracketed segments, replaces punctuation with
// spaces, collapses whitespace, and lower-cases. Normalizing twice yields
// the same result as normalizing once.
func Normalize(text string, preserveVersion bool) string {
	text = StripFeatured(text)
	if !preserveVersion {
		text = bracketRe.ReplaceAllString(text, "")
	}
	text = nonWordRe.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")
	return strings.ToLower(strings.TrimSpace(text))
}

// DetectVersionMarker scans the unnormalized title, word-boundary-matched,
// for a version marker. Returns the first marker found or "".
func DetectVersionMarker(title string) string {
	lower := strings.ToLower(title)
	for i, re := range markerRegexp {
		if re.MatchString(lower) {
			return versionMarkers[i]
		}
	}
	return ""
}

// Key builds the within-run deduplication key for a recommendation: the
// normalized (artist, title) pair joined with a separator that cannot
// survive normalization.
func Key(artist, title string) string {
	return Normalize(artist, false) + "|" + Normalize(title, false)
}
