package matching

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Default thresholds and search caps. MatchThreshold governs library search
// acceptance; SimilarityThreshold governs near-duplicate suppression and is
// stricter because refusing a fetch must be conservative.
const (
	MatchThreshold      = 0.75
	SimilarityThreshold = 0.85
	LibrarySearchLimit  = 30
	SimilarSearchLimit  = 50
)

// Similarity returns a normalized edit-distance ratio between two strings:
// 1.0 for identical, 0.0 for completely dissimilar.
func Similarity(a, b string) float64 {
	return strutil.Similarity(a, b, metrics.NewLevenshtein())
}

// Score computes the combined match score between a query and a candidate
// as 0.5*artist similarity + 0.5*title similarity. Inputs are expected to
// be normalized already.
func Score(queryArtist, queryTitle, candArtist, candTitle string) float64 {
	return 0.5*Similarity(queryArtist, candArtist) + 0.5*Similarity(queryTitle, candTitle)
}
