package matching

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/sablemoth/curator/internal/models"
)

// Searcher is the text-search surface of the library server the matcher needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error)
}

// Matcher classifies recommended tracks against the library via fuzzy search.
// Search errors are recoverable: the matcher degrades to "not present" so the
// pipeline can attempt a fetch instead of aborting the playlist.
type Matcher struct {
	lib              Searcher
	logger           *log.Logger
	matchThresh      float64
	similarityThresh float64
}

// NewMatcher creates a Matcher. Zero thresholds select the package defaults.
func NewMatcher(lib Searcher, logger *log.Logger, matchThresh, similarityThresh float64) *Matcher {
	if matchThresh <= 0 {
		matchThresh = MatchThreshold
	}
	if similarityThresh <= 0 {
		similarityThresh = SimilarityThreshold
	}
	return &Matcher{
		lib:              lib,
		logger:           logger,
		matchThresh:      matchThresh,
		similarityThresh: similarityThresh,
	}
}

// Classify runs the full precedence chain for one recommendation:
// confident-match search first (version conflicts fall out of it as
// terminal results), then the independent near-duplicate suppression pass.
func (m *Matcher) Classify(ctx context.Context, artist, title string) models.MatchResult {
	res := m.Match(ctx, artist, title)
	if res.Kind != models.MatchNone {
		return res
	}
	return m.NearDuplicate(ctx, artist, title)
}

// Match searches the library with multiple query shapes and returns a
// confident match, a version conflict, or no match.
func (m *Matcher) Match(ctx context.Context, artist, title string) models.MatchResult {
	queryArtist := Normalize(artist, false)
	queryTitle := Normalize(title, false)
	queryVersion := DetectVersionMarker(title)

	queries := []string{
		fmt.Sprintf("%q %q", artist, title),
		fmt.Sprintf("%q", title),
		artist + " " + title,
	}

	seen := map[string]bool{}
	var candidates []models.LibraryTrack
	for _, q := range queries {
		tracks, err := m.lib.Search(ctx, q, LibrarySearchLimit)
		if err != nil {
			m.logger.Debug("library search failed", "query", q, "err", err)
			continue
		}
		for _, t := range tracks {
			if t.ID == "" || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			candidates = append(candidates, t)
		}
	}

	if len(candidates) == 0 {
		return models.MatchResult{Kind: models.MatchNone}
	}

	var best models.LibraryTrack
	bestScore := 0.0
	for _, c := range candidates {
		score := Score(queryArtist, queryTitle, Normalize(c.Artist, false), Normalize(c.Title, false))
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	if bestScore < m.matchThresh {
		return models.MatchResult{Kind: models.MatchNone, Score: bestScore}
	}

	candVersion := DetectVersionMarker(best.Title)
	if queryVersion != candVersion {
		m.logger.Info("found different version in library",
			"artist", best.Artist, "title", best.Title, "score", bestScore,
			"wanted", orOriginal(queryVersion), "have", orOriginal(candVersion))
		return models.MatchResult{Kind: models.MatchVersionConflict, Score: bestScore}
	}

	m.logger.Debug("library match", "artist", best.Artist, "title", best.Title, "score", bestScore)
	return models.MatchResult{Kind: models.MatchConfident, TrackID: best.ID, Score: bestScore}
}

// NearDuplicate runs the broader artist-scoped search with version markers
// preserved, requiring both artist and title similarity to independently
// clear the stricter threshold. A hit means "close enough, do not fetch
// another copy" without being a confident match.
func (m *Matcher) NearDuplicate(ctx context.Context, artist, title string) models.MatchResult {
	tracks, err := m.lib.Search(ctx, fmt.Sprintf("%q", artist), SimilarSearchLimit)
	if err != nil {
		m.logger.Debug("similar-song search failed", "artist", artist, "err", err)
		return models.MatchResult{Kind: models.MatchNone}
	}

	queryArtist := Normalize(artist, true)
	queryTitle := Normalize(title, true)
	queryHasVersion := DetectVersionMarker(title) != ""

	for _, c := range tracks {
		if (DetectVersionMarker(c.Title) != "") != queryHasVersion {
			continue
		}
		artistSim := Similarity(queryArtist, Normalize(c.Artist, true))
		titleSim := Similarity(queryTitle, Normalize(c.Title, true))
		if artistSim >= m.similarityThresh && titleSim >= m.similarityThresh {
			m.logger.Warn("similar song already in library",
				"artist", c.Artist, "title", c.Title,
				"artist_sim", artistSim, "title_sim", titleSim)
			return models.MatchResult{
				Kind:    models.MatchNearDuplicate,
				TrackID: c.ID,
				Score:   0.5*artistSim + 0.5*titleSim,
			}
		}
	}

	return models.MatchResult{Kind: models.MatchNone}
}

func orOriginal(marker string) string {
	if marker == "" {
		return "original"
	}
	return marker
}
